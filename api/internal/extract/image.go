package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"edusolve/api/internal/logging"
)

type OCRConfig struct {
	Tesseract   string // binary name or absolute path; default "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // page segmentation mode; 0 keeps tesseract's default
}

// ImageExtractor runs Tesseract over a preprocessed image piped through
// stdin; uploads never touch disk.
type ImageExtractor struct {
	cfg    OCRConfig
	runner Runner
	logger *zap.Logger
}

func NewImageExtractor(cfg OCRConfig, logger *zap.Logger) *ImageExtractor {
	logger = logging.OrNop(logger)
	return NewImageExtractorWithRunner(cfg, execRunner{logger: logger}, logger)
}

func NewImageExtractorWithRunner(cfg OCRConfig, r Runner, logger *zap.Logger) *ImageExtractor {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &ImageExtractor{cfg: cfg, runner: r, logger: logging.OrNop(logger)}
}

func (e *ImageExtractor) Extract(ctx context.Context, a Artifact) (string, error) {
	processed, err := Preprocess(a.Data)
	if err != nil {
		return "", failed(KindImage, err)
	}

	// tesseract stdin stdout -l <lang>
	args := []string{"stdin", "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, processed, e.cfg.Tesseract, args...)
	if err != nil {
		return "", failed(KindImage, fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512)))
	}

	text := NormalizeOCR(string(out))
	if text == "" {
		return "", noText(KindImage)
	}
	return text, nil
}

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)
)

// NormalizeOCR collapses noisy whitespace and ruler lines. Line breaks are
// kept and characters are never rewritten.
func NormalizeOCR(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\f", "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
