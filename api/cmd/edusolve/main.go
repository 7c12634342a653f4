package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"edusolve/api/internal/app"
	"edusolve/api/internal/config"
	"edusolve/api/internal/httpserver"
	"edusolve/api/internal/logging"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	logger.Info("edusolve starting",
		zap.String("env", cfg.AppEnv),
		zap.String("model", cfg.GeminiModel),
		zap.Duration("probe_cache_ttl", cfg.ProbeCacheTTL),
		zap.Bool("persistence", a.Papers != nil),
	)
	if err := httpserver.Run(ctx, ":"+cfg.Port, a.Handler(), logger); err != nil {
		logger.Error("http server", zap.Error(err))
	}
}
