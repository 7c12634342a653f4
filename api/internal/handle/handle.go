package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"edusolve/api/internal/extract"
	"edusolve/api/internal/llm"
	"edusolve/api/internal/logging"
	"edusolve/api/internal/pipeline"
	"edusolve/api/internal/store"
)

// isoMillis matches the ISO-8601 form browsers produce (millisecond
// precision, Z for UTC).
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type Processor interface {
	Check(ctx context.Context) (llm.Availability, error)
	ProcessText(ctx context.Context, req pipeline.TextRequest) (pipeline.Result, error)
	ProcessFile(ctx context.Context, a extract.Artifact) (pipeline.Result, error)
}

type PaperFinder interface {
	Get(ctx context.Context, id string) (store.Paper, error)
}

type Handle struct {
	svc     Processor
	papers  PaperFinder
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

type Options struct {
	Papers  PaperFinder // nil disables GET /api/papers/{id}
	Timeout time.Duration
	Logger  *zap.Logger
}

func New(svc Processor, opt Options) *Handle {
	if opt.Timeout <= 0 {
		opt.Timeout = 180 * time.Second
	}
	return &Handle{
		svc:     svc,
		papers:  opt.Papers,
		timeout: opt.Timeout,
		logger:  logging.OrNop(opt.Logger),
		now:     time.Now,
	}
}

// Register mounts every route on mux.
func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("POST /api/process-text", h.ProcessText)
	mux.HandleFunc("POST /api/process-file", h.ProcessFile)
	mux.HandleFunc("GET /api/status/{jobId}", h.Status)
	mux.HandleFunc("GET /api/papers/{id}", h.Paper)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// requestContext applies the default deadline. The X-Request-Timeout header
// or the timeoutSec query parameter (seconds) may shorten it, never extend it.
func (h *Handle) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ts := r.Header.Get("X-Request-Timeout")
	if ts == "" {
		ts = r.URL.Query().Get("timeoutSec")
	}
	return context.WithTimeout(r.Context(), clampTimeout(ts, h.timeout))
}

func clampTimeout(raw string, limit time.Duration) time.Duration {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 || v >= int64(limit/time.Second) {
		return limit
	}
	return time.Duration(v) * time.Second
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler returns the routes wrapped in CORS and request logging.
func (h *Handle) Handler() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return WithCORS(WithRequestLog(h.logger, mux))
}
