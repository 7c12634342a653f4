package util

import "strings"

// StripCodeFences removes a code fence wrapping the whole text, e.g. a model
// answer returned as ```markdown ... ```. Inner fences are left alone.
func StripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return t
	}
	body := strings.TrimSuffix(t, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return t
	}
	// anything on the opening line is a language tag
	if tag := strings.TrimSpace(body[3:nl]); strings.ContainsAny(tag, " `") {
		return t
	}
	body = body[nl+1:]
	if strings.Contains(body, "\n```") || strings.HasPrefix(body, "```") {
		return t
	}
	return strings.TrimSpace(body)
}

// SanitizeText drops NUL bytes and non-printing controls (some PDF
// extractors emit them) and trims the result.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

// SplitRunes cuts s into pieces of at most max runes, preferring to break
// at a newline in the second half of each piece.
func SplitRunes(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	rs := []rune(s)
	if len(rs) <= max {
		return []string{s}
	}
	var out []string
	for len(rs) > max {
		cut := max
		for i := max - 1; i > max/2; i-- {
			if rs[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(rs[:cut]))
		rs = rs[cut:]
	}
	if len(rs) > 0 {
		out = append(out, string(rs))
	}
	return out
}
