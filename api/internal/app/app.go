package app

import (
	"context"
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"edusolve/api/internal/config"
	"edusolve/api/internal/extract"
	"edusolve/api/internal/handle"
	"edusolve/api/internal/llm"
	"edusolve/api/internal/llm/gemini"
	"edusolve/api/internal/logging"
	"edusolve/api/internal/pipeline"
	"edusolve/api/internal/store"
)

// App holds the process-wide collaborators shared by both binaries.
type App struct {
	Service *pipeline.Service
	Papers  *store.PaperRepo // nil when DATABASE_URL is unset

	cfg    *config.Config
	engine *gemini.Engine
	db     *sql.DB
	logger *zap.Logger
}

// Build constructs the Gemini client once and wires it, the extractors and
// the optional store into one pipeline.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	engine, err := gemini.New(ctx, gemini.Options{
		APIKey:          cfg.GeminiAPIKey,
		Model:           cfg.GeminiModel,
		Temperature:     cfg.GeminiTemperature,
		MaxOutputTokens: cfg.GeminiMaxOutputTokens,
	}, logger.Named("gemini"))
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, engine: engine, logger: logger}

	var recorder pipeline.Recorder
	if cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = engine.Close()
			return nil, err
		}
		logger.Info("db connected", zap.String("dsn", store.SafeDSNSummary(cfg.DatabaseURL)))
		a.db = db
		a.Papers = store.NewPaperRepo(db)
		recorder = a.Papers
	} else {
		logger.Info("persistence disabled: DATABASE_URL is empty")
	}

	extractor := extract.NewDispatcher(
		extract.NewPDFExtractor(),
		extract.NewImageExtractor(extract.OCRConfig{
			Tesseract:   cfg.TesseractBin,
			Lang:        cfg.TesseractLang,
			TessdataDir: cfg.TessdataDir,
		}, logger.Named("ocr")),
		logger.Named("extract"),
	)

	a.Service = pipeline.New(pipeline.Deps{
		Checker:   llm.NewChecker(engine, cfg.ProbeCacheTTL, logger.Named("probe")),
		Extractor: extractor,
		Generator: engine,
		Recorder:  recorder,
		Logger:    logger.Named("pipeline"),
	})
	return a, nil
}

// Handler returns the JSON API with middleware applied.
func (a *App) Handler() http.Handler {
	opt := handle.Options{Timeout: a.cfg.RequestTimeout, Logger: a.logger.Named("http")}
	if a.Papers != nil {
		opt.Papers = a.Papers
	}
	return handle.New(a.Service, opt).Handler()
}

func (a *App) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if err := a.engine.Close(); err != nil {
		a.logger.Warn("gemini client close", zap.Error(err))
	}
}
