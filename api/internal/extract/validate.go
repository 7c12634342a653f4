package extract

import "edusolve/api/internal/util"

// MaxUploadBytes caps every artifact kind.
const MaxUploadBytes int64 = 10 << 20

var allowed = map[string]Kind{
	"application/pdf": KindPDF,
	"image/png":       KindImage,
	"image/jpeg":      KindImage,
	"image/jpg":       KindImage,
	"text/plain":      KindText,
}

// AllowedTypes lists the canonical accepted media types.
var AllowedTypes = []string{"application/pdf", "image/png", "image/jpeg", "text/plain"}

// KindOf maps a declared media type to an artifact kind.
func KindOf(mimeType string) (Kind, bool) {
	k, ok := allowed[util.BaseMediaType(mimeType)]
	return k, ok
}

// Validate checks the declared type and size before any extraction work.
func Validate(mimeType string, size int64) (Kind, error) {
	k, ok := KindOf(mimeType)
	if !ok {
		return "", ErrUnsupportedType
	}
	if size > MaxUploadBytes {
		return k, &Error{Code: CodeTooLarge, Kind: k, Message: ErrTooLarge.Message}
	}
	return k, nil
}
