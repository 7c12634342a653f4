package extract

import (
	"context"
	"fmt"
)

type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Artifact is an uploaded file held in memory for the lifetime of one request.
type Artifact struct {
	Data     []byte
	MimeType string
	Filename string
	Size     int64
}

// Extractor turns artifact bytes into question text.
type Extractor interface {
	Extract(ctx context.Context, a Artifact) (string, error)
}

type Code string

const (
	CodeUnsupported Code = "unsupported_type"
	CodeTooLarge    Code = "too_large"
	CodeNoText      Code = "no_text"
	CodeFailed      Code = "extraction_failed"
)

// Error is the only error type extractors return. Message is safe to show
// to users; Cause is for logs.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code, so errors.Is(err, ErrNoText) holds for every kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUnsupportedType = &Error{Code: CodeUnsupported, Message: "Unsupported file type. Please upload PDF, PNG, JPG, or TXT files."}
	ErrTooLarge        = &Error{Code: CodeTooLarge, Message: "File size too large. Maximum size is 10MB."}
	ErrNoText          = &Error{Code: CodeNoText, Message: "No text could be extracted from the uploaded file"}
	ErrFailed          = &Error{Code: CodeFailed, Message: "Failed to extract text"}
)

func noText(k Kind) *Error {
	switch k {
	case KindPDF:
		return &Error{Code: CodeNoText, Kind: k, Message: "No text could be extracted from the PDF"}
	case KindImage:
		return &Error{Code: CodeNoText, Kind: k, Message: "No text could be extracted from the image"}
	default:
		return &Error{Code: CodeNoText, Kind: k, Message: ErrNoText.Message}
	}
}

func failed(k Kind, cause error) *Error {
	msg := "Failed to extract text"
	switch k {
	case KindPDF:
		msg = "Failed to extract text from PDF"
	case KindImage:
		msg = "Failed to extract text from image"
	}
	return &Error{Code: CodeFailed, Kind: k, Message: msg, Cause: cause}
}
