package handle

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"edusolve/api/internal/extract"
	"edusolve/api/internal/pipeline"
	"edusolve/api/internal/store"
	"edusolve/api/internal/util"
)

const (
	maxTextBody  = 2 << 20
	multipartCap = extract.MaxUploadBytes + 1<<20
)

type healthResponse struct {
	Status           string `json:"status"`
	ServiceConnected bool   `json:"serviceConnected"`
	APIError         string `json:"apiError,omitempty"`
	Timestamp        string `json:"timestamp"`
}

type resultResponse struct {
	ID            string `json:"id,omitempty"`
	Success       bool   `json:"success"`
	ExtractedText string `json:"extractedText"`
	Solutions     string `json:"solutions"`
	Filename      string `json:"filename"`
	FileType      string `json:"fileType,omitempty"`
	ProcessedAt   string `json:"processedAt"`
}

type errorResponse struct {
	Success    bool                  `json:"success"`
	Message    string                `json:"message"`
	Error      string                `json:"error,omitempty"`
	RetryAfter int                   `json:"retryAfter,omitempty"`
	Errors     []pipeline.FieldError `json:"errors,omitempty"`
}

func (h *Handle) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	av, err := h.svc.Check(ctx)
	if err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Service health check failed",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		ServiceConnected: av.Valid,
		APIError:         av.Error,
		Timestamp:        h.now().UTC().Format(isoMillis),
	})
}

func (h *Handle) ProcessText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTextBody)

	var req pipeline.TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: "Invalid input data",
			Errors:  []pipeline.FieldError{decodeFieldError(err)},
		})
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	res, err := h.svc.ProcessText(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(res))
}

func (h *Handle) ProcessFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, multipartCap)
	// maxMemory above the body cap keeps every part in memory
	if err := r.ParseMultipartForm(multipartCap + 1); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: extract.ErrTooLarge.Message})
			return
		}
		h.logger.Info("bad multipart body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "No file uploaded"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, fh, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "No file uploaded"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.logger.Warn("read upload failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "No file uploaded"})
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	res, err := h.svc.ProcessFile(ctx, extract.Artifact{
		Data:     data,
		MimeType: util.PickMIME(fh.Header.Get("Content-Type"), data),
		Filename: fh.Filename,
		Size:     fh.Size,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(res))
}

// Status is a placeholder: requests complete synchronously, so every job is
// reported as done.
func (h *Handle) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":    r.PathValue("jobId"),
		"status":   "completed",
		"progress": 100,
	})
}

func (h *Handle) Paper(w http.ResponseWriter, r *http.Request) {
	if h.papers == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Persistence is not enabled"})
		return
	}
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Paper not found"})
		return
	}
	ctx, cancel := h.requestContext(r)
	defer cancel()

	p, err := h.papers.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Paper not found"})
		return
	}
	if err != nil {
		h.logger.Error("load paper failed", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Failed to load paper"})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{
		ID:            p.ID,
		Success:       true,
		ExtractedText: p.ExtractedText,
		Solutions:     p.Solutions,
		Filename:      p.Filename,
		FileType:      p.FileType,
		ProcessedAt:   p.CreatedAt.UTC().Format(isoMillis),
	})
}

func (h *Handle) toResponse(res pipeline.Result) resultResponse {
	return resultResponse{
		ID:            res.ID,
		Success:       res.Success,
		ExtractedText: res.ExtractedText,
		Solutions:     res.Solutions,
		Filename:      res.Filename,
		FileType:      res.FileType,
		ProcessedAt:   res.ProcessedAt.UTC().Format(isoMillis),
	}
}

func (h *Handle) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		h.logger.Error("unclassified failure", zap.String("path", r.URL.Path), zap.Error(err))
		pe = &pipeline.Error{Outcome: pipeline.Failed, Message: "Failed to process request"}
	}
	body := errorResponse{Message: pe.Message, RetryAfter: pe.RetryAfter}
	switch pe.Outcome {
	case pipeline.Unavailable:
		body.Error = pe.Detail
	case pipeline.Rejected:
		body.Errors = pe.Fields
	}
	if pe.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(pe.RetryAfter))
	}
	writeJSON(w, pe.Outcome.HTTPStatus(), body)
}

func decodeFieldError(err error) pipeline.FieldError {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) && ute.Field != "" {
		return pipeline.FieldError{Field: ute.Field, Message: "Expected " + ute.Type.String()}
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return pipeline.FieldError{Field: "text", Message: "Request body too large"}
	}
	return pipeline.FieldError{Field: "body", Message: "Malformed JSON"}
}
