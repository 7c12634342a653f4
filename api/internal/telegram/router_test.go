package telegram

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edusolve/api/internal/extract"
	"edusolve/api/internal/llm"
	"edusolve/api/internal/pipeline"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	nextID  int
	fileURL string
	lookups int
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	f.mu.Lock()
	f.lookups++
	f.mu.Unlock()
	return f.fileURL + "/" + fileID, nil
}

func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, "edit:"+m.Text)
		}
	}
	return out
}

func (f *fakeBot) documents() []tgbotapi.DocumentConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.DocumentConfig
	for _, c := range f.sent {
		if d, ok := c.(tgbotapi.DocumentConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

type fakeProcessor struct {
	mu        sync.Mutex
	av        llm.Availability
	res       pipeline.Result
	err       error
	gate      chan struct{}
	texts     []string
	artifacts []extract.Artifact
}

func (f *fakeProcessor) Check(context.Context) (llm.Availability, error) { return f.av, nil }

func (f *fakeProcessor) ProcessText(_ context.Context, req pipeline.TextRequest) (pipeline.Result, error) {
	f.mu.Lock()
	f.texts = append(f.texts, req.Text)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.res, f.err
}

func (f *fakeProcessor) ProcessFile(_ context.Context, a extract.Artifact) (pipeline.Result, error) {
	f.mu.Lock()
	f.artifacts = append(f.artifacts, a)
	f.mu.Unlock()
	return f.res, f.err
}

func (f *fakeProcessor) artifactCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.artifacts)
}

func newTestRouter(bot *fakeBot, p *fakeProcessor) *Router {
	r := NewRouter(bot, p, 5*time.Second, nil)
	r.debounce = 200 * time.Millisecond
	return r
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}}
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	u := textUpdate(chatID, text)
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	return u
}

func TestStartCommand(t *testing.T) {
	bot := &fakeBot{}
	r := newTestRouter(bot, &fakeProcessor{})

	r.HandleUpdate(commandUpdate(1, "/start"))
	require.Len(t, bot.texts(), 1)
	assert.Contains(t, bot.texts()[0], "step-by-step solutions")
}

func TestHealthCommand(t *testing.T) {
	bot := &fakeBot{}
	p := &fakeProcessor{av: llm.Availability{Valid: true}}
	r := newTestRouter(bot, p)

	r.HandleUpdate(commandUpdate(1, "/health"))
	p.av = llm.Availability{Error: "API quota exceeded"}
	r.HandleUpdate(commandUpdate(1, "/health"))

	assert.Equal(t, []string{"✅ AI service connected", "⚠️ AI service unavailable: API quota exceeded"}, bot.texts())
}

func TestTextSubmissionHappyPath(t *testing.T) {
	bot := &fakeBot{}
	p := &fakeProcessor{res: pipeline.Result{
		Success: true, ExtractedText: "What is 2+2?", Solutions: "# Solution\n2+2=4", Filename: "Manual Input",
	}}
	r := newTestRouter(bot, p)

	r.HandleUpdate(textUpdate(7, "What is 2+2?"))
	r.Wait()

	assert.Equal(t, []string{"What is 2+2?"}, p.texts)
	assert.Equal(t, []string{
		"⏳ Processing…",
		"edit:✅ Done",
		"📄 Manual Input\n\n📝 Extracted text:\nWhat is 2+2?",
		"# Solution\n2+2=4",
	}, bot.texts())

	st, res, _ := r.sessions.Get(7).Snapshot()
	assert.Equal(t, StateSuccess, st)
	assert.Equal(t, "Manual Input", res.Filename)

	r.HandleUpdate(commandUpdate(7, "/status"))
	texts := bot.texts()
	assert.Equal(t, "✅ Last request solved: Manual Input", texts[len(texts)-1])
}

func TestSubmissionRefusedWhileInFlight(t *testing.T) {
	bot := &fakeBot{}
	p := &fakeProcessor{gate: make(chan struct{}), res: pipeline.Result{Solutions: "ok"}}
	r := newTestRouter(bot, p)

	r.HandleUpdate(textUpdate(3, "Q1"))
	r.HandleUpdate(textUpdate(3, "Q2"))
	close(p.gate)
	r.Wait()

	assert.Equal(t, []string{"Q1"}, p.texts)
	assert.Contains(t, bot.texts(), "⏳ Still working on your previous request. Please wait for it to finish.")

	// another chat is independent
	r.HandleUpdate(textUpdate(4, "Q3"))
	r.Wait()
	assert.Equal(t, []string{"Q1", "Q3"}, p.texts)
}

func TestFailureIsReportedWithClassifiedMessage(t *testing.T) {
	bot := &fakeBot{}
	p := &fakeProcessor{err: &pipeline.Error{
		Outcome: pipeline.RateLimited, Message: "Rate limit exceeded. Please wait a moment and try again.", RetryAfter: 120,
	}}
	r := newTestRouter(bot, p)

	r.HandleUpdate(textUpdate(9, "Q1"))
	r.Wait()

	assert.Equal(t, []string{
		"⏳ Processing…",
		"edit:❌ Rate limit exceeded. Please wait a moment and try again. Retry in 120 seconds.",
	}, bot.texts())
	st, _, msg := r.sessions.Get(9).Snapshot()
	assert.Equal(t, StateError, st)
	assert.Contains(t, msg, "Rate limit exceeded")
}

func TestUnavailableMessageIncludesDetail(t *testing.T) {
	msg := userMessage(&pipeline.Error{
		Outcome: pipeline.Unavailable, Message: "AI service temporarily unavailable", Detail: "Invalid API key", RetryAfter: 60,
	})
	assert.Equal(t, "AI service temporarily unavailable (Invalid API key). Retry in 60 seconds.", msg)
	assert.Equal(t, "Failed to process request", userMessage(context.Canceled))
}

func TestLongSolutionsAreChunked(t *testing.T) {
	bot := &fakeBot{}
	long := strings.Repeat("x", 9000)
	p := &fakeProcessor{res: pipeline.Result{Solutions: long, Filename: "Manual Input"}}
	r := newTestRouter(bot, p)

	r.HandleUpdate(textUpdate(5, "Q"))
	r.Wait()

	texts := bot.texts()
	require.Len(t, texts, 6)
	chunks := texts[3:]
	assert.Equal(t, long, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), chunkRunes)
	}
}

func TestDocumentChecksBeforeDownload(t *testing.T) {
	bot := &fakeBot{}
	p := &fakeProcessor{}
	r := newTestRouter(bot, p)

	big := tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Document: &tgbotapi.Document{
		FileID: "f1", FileName: "huge.pdf", MimeType: "application/pdf", FileSize: int(extract.MaxUploadBytes) + 1,
	}}}
	gif := tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Document: &tgbotapi.Document{
		FileID: "f2", FileName: "a.gif", MimeType: "image/gif", FileSize: 100,
	}}}
	r.HandleUpdate(big)
	r.HandleUpdate(gif)
	r.Wait()

	assert.Equal(t, []string{
		"❌ File size too large. Maximum size is 10MB.",
		"❌ Unsupported file type. Please upload PDF, PNG, JPG, or TXT files.",
	}, bot.texts())
	assert.Zero(t, bot.lookups)
	assert.Zero(t, p.artifactCount())
}

func TestDocumentIsDownloadedAndProcessed(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("Q1: ..."))
	}))
	defer files.Close()

	bot := &fakeBot{fileURL: files.URL}
	p := &fakeProcessor{res: pipeline.Result{Solutions: "A1", Filename: "paper.txt"}}
	r := newTestRouter(bot, p)

	r.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 2}, Document: &tgbotapi.Document{
		FileID: "doc1", FileName: "paper.txt", MimeType: "text/plain", FileSize: 7,
	}}})
	r.Wait()

	require.Equal(t, 1, p.artifactCount())
	a := p.artifacts[0]
	assert.Equal(t, []byte("Q1: ..."), a.Data)
	assert.Equal(t, "text/plain", a.MimeType)
	assert.Equal(t, "paper.txt", a.Filename)
	assert.EqualValues(t, 7, a.Size)
}

func jpegPage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 20, G: 20, B: 20, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestAlbumPagesAreMerged(t *testing.T) {
	pages := map[string][]byte{"p1": jpegPage(t, 40, 30), "p2": jpegPage(t, 20, 50)}
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write(pages[strings.TrimPrefix(req.URL.Path, "/")])
	}))
	defer files.Close()

	bot := &fakeBot{fileURL: files.URL}
	p := &fakeProcessor{res: pipeline.Result{Solutions: "A"}}
	r := newTestRouter(bot, p)

	for _, id := range []string{"p1", "p2"} {
		r.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
			Chat:         &tgbotapi.Chat{ID: 11},
			MediaGroupID: "album-1",
			Photo:        []tgbotapi.PhotoSize{{FileID: id, FileSize: len(pages[id])}},
		}})
	}
	require.Eventually(t, func() bool { return p.artifactCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	r.Wait()

	a := p.artifacts[0]
	assert.Equal(t, "album-2p.jpg", a.Filename)
	assert.Equal(t, "image/jpeg", a.MimeType)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(a.Data))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 80, cfg.Height)
	assert.Equal(t, 1, strings.Count(strings.Join(bot.texts(), "\n"), "Album received"))
}

func TestSinglePhotoIsProcessedAsJPEG(t *testing.T) {
	page := jpegPage(t, 10, 10)
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write(page)
	}))
	defer files.Close()

	bot := &fakeBot{fileURL: files.URL}
	p := &fakeProcessor{res: pipeline.Result{Solutions: "A"}}
	r := newTestRouter(bot, p)

	r.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: 12},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large", FileSize: len(page)}},
	}})
	r.Wait()

	require.Equal(t, 1, p.artifactCount())
	assert.Equal(t, page, p.artifacts[0].Data)
	assert.Equal(t, "photo.jpg", p.artifacts[0].Filename)
}

func TestSolutionsAreAttachedAsMarkdown(t *testing.T) {
	bot := &fakeBot{}
	p := &fakeProcessor{res: pipeline.Result{
		Success: true, ExtractedText: "Q1", Solutions: "# Solution\n2+2=4", Filename: "paper.pdf",
	}}
	r := newTestRouter(bot, p)

	r.HandleUpdate(textUpdate(21, "Q1"))
	r.Wait()

	docs := bot.documents()
	require.Len(t, docs, 1)
	assert.EqualValues(t, 21, docs[0].ChatID)
	fb, ok := docs[0].File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "solutions-paper.pdf.md", fb.Name)
	assert.Equal(t, "# Solution\n2+2=4", string(fb.Bytes))

	assert.Equal(t, "solutions-questions.md", exportName(" "))
}

func TestNoMarkdownOnFailure(t *testing.T) {
	bot := &fakeBot{}
	r := newTestRouter(bot, &fakeProcessor{err: errors.New("boom")})

	r.HandleUpdate(textUpdate(22, "Q1"))
	r.Wait()
	assert.Empty(t, bot.documents())
}

func TestWaitFlushesPendingAlbum(t *testing.T) {
	page := jpegPage(t, 10, 10)
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write(page)
	}))
	defer files.Close()

	bot := &fakeBot{fileURL: files.URL}
	p := &fakeProcessor{res: pipeline.Result{Solutions: "A"}}
	r := newTestRouter(bot, p)
	r.debounce = time.Hour

	r.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:         &tgbotapi.Chat{ID: 13},
		MediaGroupID: "album-2",
		Photo:        []tgbotapi.PhotoSize{{FileID: "p", FileSize: len(page)}},
	}})
	r.Wait()

	require.Equal(t, 1, p.artifactCount())
	assert.Equal(t, "album-1p.jpg", p.artifacts[0].Filename)
	_, pending := r.batches.Load("grp:album-2")
	assert.False(t, pending)
}

// pngHeader declares a w x h RGBA image without any pixel data.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 6

	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'})
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestStitchPagesRefusesHugeImagesBeforeDecode(t *testing.T) {
	_, err := stitchPages([][]byte{pngHeader(9000, 9000)})
	require.ErrorIs(t, err, extract.ErrImageTooLarge)

	// each page fits, the album does not
	_, err = stitchPages([][]byte{pngHeader(7000, 7000), pngHeader(7000, 7000)})
	require.ErrorIs(t, err, extract.ErrImageTooLarge)
}
