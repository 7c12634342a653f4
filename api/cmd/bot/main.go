package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"edusolve/api/internal/app"
	"edusolve/api/internal/config"
	"edusolve/api/internal/httpserver"
	"edusolve/api/internal/logging"
	"edusolve/api/internal/telegram"
)

func main() {
	cfg := config.Load()
	cfg.RequireTelegram()

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

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal("telegram", zap.Error(err))
	}
	bot.Debug = false
	logger.Info("telegram authorized", zap.String("username", bot.Self.UserName))

	r := telegram.NewRouter(bot, a.Service, cfg.RequestTimeout, logger.Named("telegram"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	addr := "0.0.0.0:" + cfg.Port
	if base := strings.TrimSpace(cfg.WebhookURL); base != "" {
		if err := registerWebhook(bot, mux, base, r, logger); err != nil {
			logger.Fatal("webhook", zap.Error(err))
		}
	} else {
		go runPolling(ctx, bot, r.HandleUpdate, logger)
	}

	if err := httpserver.Run(ctx, addr, mux, logger); err != nil {
		logger.Error("http server", zap.Error(err))
	}
	logger.Info("waiting for in-flight requests")
	r.Wait()
}

// registerWebhook mounts the update handler on a path derived from the token.
func registerWebhook(bot *tgbotapi.BotAPI, mux *http.ServeMux, baseURL string, r *telegram.Router, logger *zap.Logger) error {
	path := "/webhook/" + shortHash(bot.Token)
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	mux.HandleFunc("POST "+path, func(w http.ResponseWriter, req *http.Request) {
		upd, err := bot.HandleUpdate(req)
		if err != nil {
			logger.Warn("webhook decode", zap.Error(err))
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		r.HandleUpdate(*upd)
		w.WriteHeader(http.StatusOK)
	})
	logger.Info("webhook registered", zap.String("path", path))
	return nil
}

// shortHash derives a stable, non-secret webhook path segment from the token.
func shortHash(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}
