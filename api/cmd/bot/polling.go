package main

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type updatesGetter interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

// retryDelayFromError prefers the retry_after Telegram returns with a 429
// and falls back to the error text for transport-level failures.
func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	var te *tgbotapi.Error
	if errors.As(err, &te) {
		if te.RetryAfter > 0 {
			return time.Duration(te.RetryAfter) * time.Second
		}
		if te.Code == 429 {
			return 3 * time.Second
		}
	}
	if m := reRetryAfter.FindStringSubmatch(err.Error()); len(m) == 2 {
		if n, _ := strconv.Atoi(m[1]); n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "too many requests") {
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return time.Second
}

// runPolling long-polls until ctx is done, backing off on errors.
func runPolling(ctx context.Context, bot updatesGetter, handle func(tgbotapi.Update), logger *zap.Logger) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		if ctx.Err() != nil {
			logger.Info("polling stopped")
			return
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			logger.Warn("polling error", zap.Error(err), zap.Duration("retry_in", d))
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
