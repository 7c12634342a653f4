package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port   string
	AppEnv string
	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string

	GeminiAPIKey          string
	GeminiModel           string
	GeminiTemperature     float32
	GeminiMaxOutputTokens int32

	TesseractBin  string
	TesseractLang string
	TessdataDir   string

	// ProbeCacheTTL == 0 re-probes Gemini before every request.
	ProbeCacheTTL  time.Duration
	RequestTimeout time.Duration

	DatabaseURL      string
	TelegramBotToken string
	// WebhookURL switches the bot from long polling to webhook mode.
	WebhookURL string
}

func mustEnv(k string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvFloat32(k string, def float32) float32 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return def
}

func getEnvInt32(k string, def int32) int32 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			return int32(n)
		}
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Load reads .env (if present) and the process environment.
// A missing GEMINI_API_KEY is fatal.
func Load() *Config {
	_ = godotenv.Load(".env")
	cfg := FromEnv()
	cfg.GeminiAPIKey = mustEnv("GEMINI_API_KEY")
	return cfg
}

// FromEnv builds a Config without enforcing required keys.
func FromEnv() *Config {
	return &Config{
		Port:     getEnv("PORT", "8000"),
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiTemperature:     getEnvFloat32("GEMINI_TEMPERATURE", 0.3),
		GeminiMaxOutputTokens: getEnvInt32("GEMINI_MAX_OUTPUT_TOKENS", 8192),

		TesseractBin:  getEnv("TESSERACT_BIN", "tesseract"),
		TesseractLang: getEnv("TESSERACT_LANG", "eng"),
		TessdataDir:   getEnv("TESSDATA_PREFIX", ""),

		ProbeCacheTTL:  getEnvDuration("PROBE_CACHE_TTL", 0),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 180*time.Second),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

// RequireTelegram aborts when the bot token is missing.
func (c *Config) RequireTelegram() {
	c.TelegramBotToken = mustEnv("TELEGRAM_BOT_TOKEN")
}
