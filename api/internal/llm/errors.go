package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Class string

const (
	ClassInvalidKey  Class = "invalid_key"
	ClassQuota       Class = "quota"
	ClassPermission  Class = "permission"
	ClassRateLimited Class = "rate_limited"
	ClassEmpty       Class = "empty"
	ClassUnknown     Class = "unknown"
)

// Message is the user-facing text for a failed generation.
func (c Class) Message() string {
	switch c {
	case ClassInvalidKey:
		return "Invalid API key configuration. Please check your Gemini API key."
	case ClassQuota:
		return "API quota exceeded. Please try again later or check your billing."
	case ClassPermission:
		return "Permission denied. Please verify your API key has proper permissions."
	case ClassRateLimited:
		return "Rate limit exceeded. Please wait a moment and try again."
	case ClassEmpty:
		return "AI model returned an empty response"
	default:
		return "Failed to generate solutions. Please try again."
	}
}

// ProbeMessage is the shorter text reported by the availability probe.
func (c Class) ProbeMessage() string {
	switch c {
	case ClassInvalidKey:
		return "Invalid API key"
	case ClassQuota:
		return "API quota exceeded"
	case ClassPermission:
		return "API permission denied"
	case ClassRateLimited:
		return "API rate limit exceeded"
	default:
		return "API validation failed"
	}
}

// Throttled reports whether retrying later is likely to help.
func (c Class) Throttled() bool { return c == ClassQuota || c == ClassRateLimited }

// Credential reports whether the failure points at the API key itself.
func (c Class) Credential() bool { return c == ClassInvalidKey || c == ClassPermission }

// Error is returned by generators. Message is safe to show; Cause never is.
type Error struct {
	Class   Class
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm %s: %v", e.Class, e.Cause)
	}
	return fmt.Sprintf("llm %s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

var ErrEmptyInput = errors.New("question text is required")

// Wrap classifies err and returns it as *Error. Already classified errors
// pass through unchanged.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	c := Classify(err)
	return &Error{Class: c, Message: c.Message(), Cause: err}
}

// Classify maps an upstream failure onto the closed taxonomy. Structured
// details win; substring matching only covers errors that carry none.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Class
	}
	if c, ok := classifyReason(err); ok {
		return c
	}
	if c, ok := classifyGRPC(err); ok {
		return c
	}
	if c, ok := classifyHTTP(err); ok {
		return c
	}
	return classifyText(err.Error())
}

func classifyReason(err error) (Class, bool) {
	ae, ok := apierror.FromError(err)
	if !ok {
		return "", false
	}
	return reasonClass(ae.Reason())
}

func reasonClass(reason string) (Class, bool) {
	switch strings.ToUpper(reason) {
	case "API_KEY_INVALID", "API_KEY_NOT_FOUND", "API_KEY_EXPIRED":
		return ClassInvalidKey, true
	case "QUOTA_EXCEEDED", "RESOURCE_EXHAUSTED":
		return ClassQuota, true
	case "RATE_LIMIT_EXCEEDED":
		return ClassRateLimited, true
	case "PERMISSION_DENIED", "IAM_PERMISSION_DENIED", "SERVICE_DISABLED", "ACCESS_TOKEN_SCOPE_INSUFFICIENT":
		return ClassPermission, true
	}
	return "", false
}

func classifyGRPC(err error) (Class, bool) {
	var code codes.Code
	if ae, ok := apierror.FromError(err); ok && ae.GRPCStatus() != nil {
		code = ae.GRPCStatus().Code()
	} else if st, ok := status.FromError(err); ok {
		code = st.Code()
	} else {
		return "", false
	}
	switch code {
	case codes.Unauthenticated:
		return ClassInvalidKey, true
	case codes.PermissionDenied:
		return ClassPermission, true
	case codes.ResourceExhausted:
		return ClassRateLimited, true
	}
	return "", false
}

func classifyHTTP(err error) (Class, bool) {
	code := -1
	var ge *googleapi.Error
	if ae, ok := apierror.FromError(err); ok {
		code = ae.HTTPCode()
	} else if errors.As(err, &ge) {
		code = ge.Code
	}
	switch code {
	case http.StatusUnauthorized:
		return ClassInvalidKey, true
	case http.StatusForbidden:
		return ClassPermission, true
	case http.StatusTooManyRequests:
		return ClassRateLimited, true
	}
	return "", false
}

func classifyText(msg string) Class {
	switch {
	case strings.Contains(msg, "API_KEY_INVALID"), strings.Contains(msg, "API key not valid"):
		return ClassInvalidKey
	case strings.Contains(msg, "QUOTA_EXCEEDED"):
		return ClassQuota
	case strings.Contains(msg, "PERMISSION_DENIED"):
		return ClassPermission
	case strings.Contains(msg, "RATE_LIMIT_EXCEEDED"):
		return ClassRateLimited
	}
	return ClassUnknown
}

// IsCanceled reports a caller-side cancellation rather than an upstream fault.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
