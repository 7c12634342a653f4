package pipeline

import (
	"fmt"
	"net/http"
)

// Outcome is the terminal failure state of a request. HTTPStatus is the only
// place it is mapped onto a transport code.
type Outcome string

const (
	Rejected    Outcome = "rejected"
	Unavailable Outcome = "unavailable"
	RateLimited Outcome = "rate_limited"
	Failed      Outcome = "failed"
)

const (
	unavailableRetryAfter = 60
	throttledRetryAfter   = 120
)

func (o Outcome) HTTPStatus() int {
	switch o {
	case Rejected:
		return http.StatusBadRequest
	case Unavailable:
		return http.StatusServiceUnavailable
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error carries only user-safe text. Cause is kept for logs and errors.Is.
type Error struct {
	Outcome    Outcome
	Message    string
	Detail     string
	RetryAfter int
	Fields     []FieldError
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Outcome, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Outcome, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func rejected(msg string, cause error, fields ...FieldError) *Error {
	return &Error{Outcome: Rejected, Message: msg, Fields: fields, Cause: cause}
}

func unavailable(detail string) *Error {
	if detail == "" {
		detail = "API validation failed"
	}
	return &Error{
		Outcome:    Unavailable,
		Message:    "AI service temporarily unavailable",
		Detail:     detail,
		RetryAfter: unavailableRetryAfter,
	}
}
