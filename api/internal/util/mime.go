package util

import (
	"mime"
	"net/http"
	"strings"
)

// SniffMime detects the media type from magic bytes. Only the kinds the
// pipeline understands are recognised; everything else is reported as
// application/octet-stream.
func SniffMime(b []byte) string {
	// JPEG: FF D8
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return "image/jpeg"
	}
	// PNG
	if len(b) >= 8 &&
		b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 &&
		b[4] == 0x0D && b[5] == 0x0A && b[6] == 0x1A && b[7] == 0x0A {
		return "image/png"
	}
	// PDF
	if len(b) >= 5 && b[0] == '%' && b[1] == 'P' && b[2] == 'D' && b[3] == 'F' && b[4] == '-' {
		return "application/pdf"
	}
	if len(b) > 0 {
		if ct := BaseMediaType(http.DetectContentType(b)); ct == "text/plain" {
			return ct
		}
	}
	return "application/octet-stream"
}

// BaseMediaType lowercases a Content-Type and drops its parameters.
func BaseMediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// PickMIME prefers the declared type and sniffs the bytes only when the
// declaration is missing or generic.
func PickMIME(declared string, data []byte) string {
	d := BaseMediaType(declared)
	if d != "" && d != "application/octet-stream" {
		return d
	}
	return SniffMime(data)
}
