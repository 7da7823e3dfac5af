package utils

import (
	"unicode/utf8"
)

// TruncateUTF8 truncates s to at most max bytes while keeping the result
// valid UTF-8. Used to cap serialized metadata snippets before they are
// logged or persisted.
func TruncateUTF8(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	truncated := s[:max]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}

// SanitizeUTF8 replaces invalid UTF-8 sequences so the result can be
// embedded in JSON output without re-encoding errors.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	result := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		result = append(result, r)
	}
	return string(result)
}
