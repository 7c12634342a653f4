package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"edusolve/api/internal/extract"
	"edusolve/api/internal/llm"
	"edusolve/api/internal/logging"
	"edusolve/api/internal/pipeline"
)

// chunkRunes keeps each message under Telegram's 4096 character limit.
const chunkRunes = 3900

// Bot is the part of *tgbotapi.BotAPI the router needs.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Processor interface {
	Check(ctx context.Context) (llm.Availability, error)
	ProcessText(ctx context.Context, req pipeline.TextRequest) (pipeline.Result, error)
	ProcessFile(ctx context.Context, a extract.Artifact) (pipeline.Result, error)
}

type Router struct {
	bot      Bot
	svc      Processor
	sessions Sessions
	batches  sync.Map // album key -> *photoBatch
	httpc    *http.Client
	timeout  time.Duration
	debounce time.Duration
	logger   *zap.Logger

	wg sync.WaitGroup
}

func NewRouter(bot Bot, svc Processor, timeout time.Duration, logger *zap.Logger) *Router {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Router{
		bot:      bot,
		svc:      svc,
		httpc:    &http.Client{Timeout: 60 * time.Second},
		timeout:  timeout,
		debounce: 1200 * time.Millisecond,
		logger:   logging.OrNop(logger),
	}
}

// Wait submits albums still in their debounce window, then blocks until
// every in-flight request has been answered.
func (r *Router) Wait() {
	r.flushPendingAlbums()
	r.wg.Wait()
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		r.handleCommand(msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(msg)
	case msg.Document != nil:
		r.acceptDocument(msg)
	case strings.TrimSpace(msg.Text) != "":
		text := msg.Text
		r.submit(cid, func(ctx context.Context) (pipeline.Result, error) {
			return r.svc.ProcessText(ctx, pipeline.TextRequest{Text: text})
		})
	default:
		r.send(cid, "Send me question text, a photo, or a PDF, PNG, JPG or TXT file.")
	}
}

func (r *Router) handleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, "Send me a question paper and I will reply with step-by-step solutions.\n\n"+
			"• paste the questions as text\n"+
			"• send a photo of the page\n"+
			"• attach a PDF, PNG, JPG or TXT file (up to 10MB)\n\n"+
			"Commands: /health, /status")
	case "health":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		av, err := r.svc.Check(ctx)
		switch {
		case err != nil:
			r.logger.Warn("health command failed", zap.Error(err))
			r.send(cid, "⚠️ Service health check failed")
		case av.Valid:
			r.send(cid, "✅ AI service connected")
		default:
			r.send(cid, "⚠️ AI service unavailable: "+av.Error)
		}
	case "status":
		state, res, errMsg := r.sessions.Get(cid).Snapshot()
		switch state {
		case StateInFlight:
			r.send(cid, "⏳ Processing your request…")
		case StateSuccess:
			r.send(cid, fmt.Sprintf("✅ Last request solved: %s", res.Filename))
		case StateError:
			r.send(cid, "❌ Last request failed: "+errMsg)
		default:
			r.send(cid, "Nothing submitted yet.")
		}
	default:
		r.send(cid, "Unknown command")
	}
}

func (r *Router) send(chatID int64, text string) (int, error) {
	m, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		r.logger.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return 0, err
	}
	return m.MessageID, nil
}

func (r *Router) edit(chatID int64, messageID int, text string) {
	if messageID == 0 {
		r.send(chatID, text)
		return
	}
	if _, err := r.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		r.logger.Warn("telegram edit failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
