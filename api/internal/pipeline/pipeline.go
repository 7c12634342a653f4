package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"edusolve/api/internal/extract"
	"edusolve/api/internal/llm"
	"edusolve/api/internal/logging"
	"edusolve/api/internal/util"
)

const ManualInputName = "Manual Input"

type TextRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename,omitempty"`
}

// Result is built once per successful request. ID is set only when a
// Recorder is configured.
type Result struct {
	ID            string    `json:"id,omitempty"`
	Success       bool      `json:"success"`
	ExtractedText string    `json:"extractedText"`
	Solutions     string    `json:"solutions"`
	Filename      string    `json:"filename"`
	FileType      string    `json:"fileType,omitempty"`
	ProcessedAt   time.Time `json:"processedAt"`
}

// Recorder persists finished results. Its failures never fail a request.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

type AvailabilityChecker interface {
	Check(ctx context.Context) (llm.Availability, error)
	Invalidate()
}

type Deps struct {
	Checker   AvailabilityChecker
	Extractor extract.Extractor
	Generator llm.Generator
	Recorder  Recorder // optional
	Logger    *zap.Logger
	Clock     func() time.Time // defaults to time.Now in UTC
}

// Service runs validate, probe, extract and generate strictly in sequence.
type Service struct {
	checker   AvailabilityChecker
	extractor extract.Extractor
	generator llm.Generator
	recorder  Recorder
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(d Deps) *Service {
	now := d.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		checker:   d.Checker,
		extractor: d.Extractor,
		generator: d.Generator,
		recorder:  d.Recorder,
		logger:    logging.OrNop(d.Logger),
		now:       now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Check exposes the availability probe to the health surfaces.
func (s *Service) Check(ctx context.Context) (llm.Availability, error) {
	return s.checker.Check(ctx)
}

func (s *Service) ProcessText(ctx context.Context, req TextRequest) (Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, rejected("Invalid input data", nil,
			FieldError{Field: "text", Message: "Question text is required"})
	}
	if err := s.gate(ctx); err != nil {
		return Result{}, err
	}

	solutions, err := s.generate(ctx, req.Text)
	if err != nil {
		return Result{}, err
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = ManualInputName
	}
	return s.finish(ctx, Result{
		Success:       true,
		ExtractedText: req.Text,
		Solutions:     solutions,
		Filename:      filename,
	}), nil
}

func (s *Service) ProcessFile(ctx context.Context, a extract.Artifact) (Result, error) {
	// a present but empty file falls through to the no-text rejection
	if a.Data == nil && a.Size == 0 && a.Filename == "" {
		return Result{}, rejected("No file uploaded", nil)
	}
	if a.Size == 0 {
		a.Size = int64(len(a.Data))
	}
	if err := s.gate(ctx); err != nil {
		return Result{}, err
	}

	if _, err := extract.Validate(a.MimeType, a.Size); err != nil {
		s.logger.Info("artifact rejected",
			zap.String("filename", a.Filename),
			zap.String("mime", a.MimeType),
			zap.Int64("size", a.Size),
			zap.Error(err),
		)
		return Result{}, rejectedExtraction(err)
	}

	text, err := s.extractor.Extract(ctx, a)
	if err != nil {
		return Result{}, rejectedExtraction(err)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, rejected(extract.ErrNoText.Message, extract.ErrNoText)
	}

	solutions, err := s.generate(ctx, text)
	if err != nil {
		return Result{}, err
	}
	return s.finish(ctx, Result{
		Success:       true,
		ExtractedText: text,
		Solutions:     solutions,
		Filename:      a.Filename,
		FileType:      util.BaseMediaType(a.MimeType),
	}), nil
}

func (s *Service) gate(ctx context.Context) error {
	av, err := s.checker.Check(ctx)
	if err != nil {
		s.logger.Warn("availability check aborted", zap.Error(err))
		return unavailable("")
	}
	if !av.Valid {
		return unavailable(av.Error)
	}
	return nil
}

func (s *Service) generate(ctx context.Context, text string) (string, error) {
	out, err := s.generator.Generate(ctx, text)
	if err == nil {
		return out, nil
	}
	le := llm.Wrap(err)
	s.logger.Error("generation failed", zap.String("class", string(le.Class)), zap.Error(err))

	if le.Class.Credential() {
		s.checker.Invalidate()
	}
	if le.Class.Throttled() {
		return "", &Error{Outcome: RateLimited, Message: le.Message, RetryAfter: throttledRetryAfter, Cause: le}
	}
	return "", &Error{Outcome: Failed, Message: le.Message, Cause: le}
}

func (s *Service) finish(ctx context.Context, r Result) Result {
	r.ProcessedAt = s.now()
	if s.recorder == nil {
		return r
	}
	r.ID = s.newID()
	if err := s.recorder.Record(ctx, r); err != nil {
		s.logger.Error("record result failed", zap.String("id", r.ID), zap.Error(err))
	}
	return r
}

func rejectedExtraction(err error) *Error {
	var xe *extract.Error
	if errors.As(err, &xe) {
		return rejected(xe.Message, err)
	}
	return rejected(extract.ErrFailed.Message, err)
}
