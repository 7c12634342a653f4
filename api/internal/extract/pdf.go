package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"edusolve/api/internal/util"
)

// PDFExtractor reads the text layer of a PDF. Scanned PDFs without a text
// layer yield ErrNoText.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (p *PDFExtractor) Extract(ctx context.Context, a Artifact) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", failed(KindPDF, err)
	}
	// ledongthuc/pdf panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", failed(KindPDF, fmt.Errorf("pdf reader panic: %v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	if err != nil {
		return "", failed(KindPDF, fmt.Errorf("open pdf: %w", err))
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", failed(KindPDF, fmt.Errorf("extract pdf text: %w", err))
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, plain); err != nil {
		return "", failed(KindPDF, fmt.Errorf("read extracted text: %w", err))
	}
	text = util.SanitizeText(buf.String())
	if text == "" {
		return "", noText(KindPDF)
	}
	return text, nil
}
