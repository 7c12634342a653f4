package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"edusolve/api/internal/pipeline"
	"edusolve/api/internal/util"
)

const previewRunes = 1000

// submit runs one request for the chat in the background. The chat sees a
// single "Processing…" message that is edited once the request finishes.
func (r *Router) submit(cid int64, run func(ctx context.Context) (pipeline.Result, error)) {
	sess := r.sessions.Get(cid)
	if !sess.Begin() {
		r.send(cid, "⏳ Still working on your previous request. Please wait for it to finish.")
		return
	}
	statusID, _ := r.send(cid, "⏳ Processing…")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		res, err := run(ctx)
		if err != nil {
			msg := userMessage(err)
			r.logger.Info("request failed", zap.Int64("chat_id", cid), zap.Error(err))
			sess.Fail(msg)
			r.edit(cid, statusID, "❌ "+msg)
			return
		}
		sess.Succeed(res)
		r.edit(cid, statusID, "✅ Done")
		r.deliver(cid, res)
	}()
}

func (r *Router) deliver(cid int64, res pipeline.Result) {
	var b strings.Builder
	fmt.Fprintf(&b, "📄 %s\n\n📝 Extracted text:\n", res.Filename)
	preview := []rune(strings.TrimSpace(res.ExtractedText))
	if len(preview) > previewRunes {
		b.WriteString(string(preview[:previewRunes]))
		b.WriteString("…")
	} else {
		b.WriteString(string(preview))
	}
	r.send(cid, b.String())

	for _, part := range util.SplitRunes(res.Solutions, chunkRunes) {
		r.send(cid, part)
	}
	r.sendMarkdown(cid, res)
}

// sendMarkdown attaches the solutions as a downloadable .md file.
func (r *Router) sendMarkdown(cid int64, res pipeline.Result) {
	if strings.TrimSpace(res.Solutions) == "" {
		return
	}
	doc := tgbotapi.NewDocument(cid, tgbotapi.FileBytes{
		Name:  exportName(res.Filename),
		Bytes: []byte(res.Solutions),
	})
	doc.Caption = "📥 Solutions as Markdown"
	if _, err := r.bot.Send(doc); err != nil {
		r.logger.Warn("telegram document send failed", zap.Int64("chat_id", cid), zap.Error(err))
	}
}

func exportName(filename string) string {
	name := strings.TrimSpace(filename)
	if name == "" {
		name = "questions"
	}
	return "solutions-" + name + ".md"
}

func userMessage(err error) string {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		return "Failed to process request"
	}
	msg := pe.Message
	if pe.Outcome == pipeline.Unavailable && pe.Detail != "" {
		msg += " (" + pe.Detail + ")"
	}
	if pe.RetryAfter > 0 {
		msg = strings.TrimSuffix(msg, ".") + fmt.Sprintf(". Retry in %d seconds.", pe.RetryAfter)
	}
	return msg
}
