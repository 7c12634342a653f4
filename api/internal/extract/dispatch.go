package extract

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"edusolve/api/internal/logging"
)

// Dispatcher picks the extractor for an artifact's declared media type.
type Dispatcher struct {
	pdf    Extractor
	image  Extractor
	text   Extractor
	logger *zap.Logger
}

func NewDispatcher(pdf, image Extractor, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pdf:    pdf,
		image:  image,
		text:   TextExtractor{},
		logger: logging.OrNop(logger),
	}
}

func (d *Dispatcher) Extract(ctx context.Context, a Artifact) (string, error) {
	kind, ok := KindOf(a.MimeType)
	if !ok {
		return "", ErrUnsupportedType
	}
	var ex Extractor
	switch kind {
	case KindPDF:
		ex = d.pdf
	case KindImage:
		ex = d.image
	default:
		ex = d.text
	}
	if ex == nil {
		return "", ErrUnsupportedType
	}

	start := time.Now()
	text, err := ex.Extract(ctx, a)
	if err != nil {
		d.logger.Warn("extraction failed",
			zap.String("kind", string(kind)),
			zap.String("filename", a.Filename),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}
	d.logger.Debug("extraction ok",
		zap.String("kind", string(kind)),
		zap.Int("chars", len(text)),
		zap.Duration("took", time.Since(start)),
	)
	return text, nil
}

// TextExtractor returns the decoded bytes verbatim.
type TextExtractor struct{}

func (TextExtractor) Extract(_ context.Context, a Artifact) (string, error) {
	text := string(a.Data)
	if strings.TrimSpace(text) == "" {
		return "", noText(KindText)
	}
	return text, nil
}
