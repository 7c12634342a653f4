package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"edusolve/api/internal/extract"
	"edusolve/api/internal/pipeline"
	"edusolve/api/internal/util"
)

const maxAlbumPixels = 18_000_000

var errTooLarge = errors.New("file exceeds upload limit")

// photoBatch collects the pages of one album until no new page has arrived
// for the debounce interval.
type photoBatch struct {
	mu     sync.Mutex
	chatID int64
	pages  [][]byte
	timer  *time.Timer
}

func (r *Router) acceptPhoto(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	ph := msg.Photo[len(msg.Photo)-1] // largest size
	if int64(ph.FileSize) > extract.MaxUploadBytes {
		r.send(cid, "❌ "+extract.ErrTooLarge.Message)
		return
	}
	data, err := r.fetch(ph.FileID)
	if err != nil {
		r.logger.Warn("photo download failed", zap.Int64("chat_id", cid), zap.Error(err))
		r.send(cid, "❌ Could not download the photo. Please send it again.")
		return
	}

	if msg.MediaGroupID == "" {
		r.submitImage(cid, "photo.jpg", data)
		return
	}

	key := "grp:" + msg.MediaGroupID
	bi, loaded := r.batches.LoadOrStore(key, &photoBatch{chatID: cid})
	if !loaded {
		// released by flushAlbum
		r.wg.Add(1)
	}
	b := bi.(*photoBatch)

	b.mu.Lock()
	b.pages = append(b.pages, data)
	first := len(b.pages) == 1
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(r.debounce, func() { r.flushAlbum(key) })
	b.mu.Unlock()

	if first {
		r.send(cid, "📚 Album received. Pages are merged top to bottom before processing.")
	}
}

func (r *Router) flushAlbum(key string) {
	bi, ok := r.batches.LoadAndDelete(key)
	if !ok {
		return
	}
	defer r.wg.Done()
	b := bi.(*photoBatch)
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	pages := append([][]byte(nil), b.pages...)
	cid := b.chatID
	b.mu.Unlock()

	if len(pages) == 0 {
		return
	}
	merged, err := stitchPages(pages)
	if err != nil {
		r.logger.Warn("album merge failed", zap.Int64("chat_id", cid), zap.Int("pages", len(pages)), zap.Error(err))
		r.send(cid, "❌ Could not read the album photos. Please send them again.")
		return
	}
	r.submitImage(cid, fmt.Sprintf("album-%dp.jpg", len(pages)), merged)
}

// flushPendingAlbums submits every album still waiting for its debounce.
func (r *Router) flushPendingAlbums() {
	r.batches.Range(func(k, _ any) bool {
		r.flushAlbum(k.(string))
		return true
	})
}

func (r *Router) submitImage(cid int64, name string, data []byte) {
	r.submit(cid, func(ctx context.Context) (pipeline.Result, error) {
		return r.svc.ProcessFile(ctx, extract.Artifact{
			Data:     data,
			MimeType: "image/jpeg",
			Filename: name,
			Size:     int64(len(data)),
		})
	})
}

func (r *Router) acceptDocument(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	doc := msg.Document
	if int64(doc.FileSize) > extract.MaxUploadBytes {
		r.send(cid, "❌ "+extract.ErrTooLarge.Message)
		return
	}
	if doc.MimeType != "" {
		if _, ok := extract.KindOf(doc.MimeType); !ok {
			r.send(cid, "❌ "+extract.ErrUnsupportedType.Message)
			return
		}
	}
	data, err := r.fetch(doc.FileID)
	if errors.Is(err, errTooLarge) {
		r.send(cid, "❌ "+extract.ErrTooLarge.Message)
		return
	}
	if err != nil {
		r.logger.Warn("document download failed", zap.Int64("chat_id", cid), zap.Error(err))
		r.send(cid, "❌ Could not download the file. Please send it again.")
		return
	}

	art := extract.Artifact{
		Data:     data,
		MimeType: util.PickMIME(doc.MimeType, data),
		Filename: doc.FileName,
		Size:     int64(len(data)),
	}
	r.submit(cid, func(ctx context.Context) (pipeline.Result, error) {
		return r.svc.ProcessFile(ctx, art)
	})
}

// fetch downloads a Telegram file into memory, refusing anything above the
// upload limit.
func (r *Router) fetch(fileID string) ([]byte, error) {
	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, extract.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > extract.MaxUploadBytes {
		return nil, errTooLarge
	}
	return data, nil
}

// stitchPages stacks album pages vertically on a white canvas, centred, and
// re-encodes the result as JPEG small enough to upload.
func stitchPages(pages [][]byte) ([]byte, error) {
	var area int64
	for i, p := range pages {
		cfg, err := extract.CheckDimensions(p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		area += int64(cfg.Width) * int64(cfg.Height)
	}
	if area > extract.MaxDecodePixels {
		return nil, fmt.Errorf("%w: album of %d pages", extract.ErrImageTooLarge, len(pages))
	}

	imgs := make([]image.Image, 0, len(pages))
	maxW, sumH := 0, 0
	for i, p := range pages {
		img, err := imaging.Decode(bytes.NewReader(p), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		b := img.Bounds()
		if b.Dx() > maxW {
			maxW = b.Dx()
		}
		sumH += b.Dy()
		imgs = append(imgs, img)
	}
	if maxW == 0 || sumH == 0 {
		return nil, errors.New("empty images")
	}
	if int64(maxW)*int64(sumH) > extract.MaxDecodePixels {
		return nil, fmt.Errorf("%w: canvas %dx%d", extract.ErrImageTooLarge, maxW, sumH)
	}

	dst := imaging.New(maxW, sumH, color.White)
	y := 0
	for _, img := range imgs {
		b := img.Bounds()
		dst = imaging.Paste(dst, img, image.Pt((maxW-b.Dx())/2, y))
		y += b.Dy()
	}

	var final image.Image = dst
	if px := maxW * sumH; px > maxAlbumPixels {
		scale := math.Sqrt(float64(maxAlbumPixels) / float64(px))
		final = imaging.Resize(dst, int(float64(maxW)*scale+0.5), 0, imaging.Lanczos)
	}

	for attempt := 0; ; attempt++ {
		var out bytes.Buffer
		if err := imaging.Encode(&out, final, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return nil, err
		}
		if int64(out.Len()) <= extract.MaxUploadBytes || attempt == 3 {
			return out.Bytes(), nil
		}
		b := final.Bounds()
		final = imaging.Resize(final, b.Dx()*7/10, 0, imaging.Lanczos)
	}
}
