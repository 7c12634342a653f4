package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"edusolve/api/internal/llm"
	"edusolve/api/internal/logging"
	"edusolve/api/internal/util"
)

const (
	probePrompt    = "Hello, respond with 'API connected successfully'"
	probeMaxTokens = 100
)

type Options struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// contentGenerator is the slice of *genai.GenerativeModel the engine uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Engine owns one client for the process lifetime. Solver and probe are two
// model handles over that client with different generation settings.
type Engine struct {
	model  string
	client *genai.Client
	solver contentGenerator
	probe  contentGenerator
	logger *zap.Logger
}

var (
	_ llm.Generator = (*Engine)(nil)
	_ llm.Prober    = (*Engine)(nil)
)

func New(ctx context.Context, opt Options, logger *zap.Logger) (*Engine, error) {
	key := strings.TrimSpace(opt.APIKey)
	if key == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	model := strings.TrimSpace(opt.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	solver := cl.GenerativeModel(model)
	solver.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptrFloat32(opt.Temperature),
		MaxOutputTokens: ptrInt32(opt.MaxOutputTokens),
	}
	probe := cl.GenerativeModel(model)
	probe.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptrInt32(probeMaxTokens),
	}

	return &Engine{
		model:  model,
		client: cl,
		solver: solver,
		probe:  probe,
		logger: logging.OrNop(logger),
	}, nil
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.model }

func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// Generate asks the solver model for step-by-step solutions. Failures are
// returned as *llm.Error.
func (e *Engine) Generate(ctx context.Context, questionText string) (string, error) {
	if strings.TrimSpace(questionText) == "" {
		return "", llm.ErrEmptyInput
	}
	start := time.Now()
	resp, err := e.solver.GenerateContent(ctx, genai.Text(BuildPrompt(questionText)))
	if err != nil {
		le := llm.Wrap(err)
		e.logger.Error("gemini generate failed",
			zap.String("model", e.model),
			zap.String("class", string(le.Class)),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return "", le
	}
	txt := strings.TrimSpace(util.StripCodeFences(allText(resp)))
	if txt == "" {
		e.logger.Warn("gemini returned empty response", zap.String("model", e.model))
		return "", &llm.Error{Class: llm.ClassEmpty, Message: llm.ClassEmpty.Message()}
	}
	e.logger.Info("gemini generate ok",
		zap.String("model", e.model),
		zap.Int("input_chars", len(questionText)),
		zap.Int("output_chars", len(txt)),
		zap.Duration("took", time.Since(start)),
	)
	return txt, nil
}

// Probe sends a trivial prompt with a small output cap.
func (e *Engine) Probe(ctx context.Context) error {
	resp, err := e.probe.GenerateContent(ctx, genai.Text(probePrompt))
	if err != nil {
		return llm.Wrap(err)
	}
	if strings.TrimSpace(allText(resp)) == "" {
		return &llm.Error{Class: llm.ClassEmpty, Message: llm.ClassEmpty.Message()}
	}
	return nil
}

// allText joins the text parts of the first candidate that has any.
func allText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
