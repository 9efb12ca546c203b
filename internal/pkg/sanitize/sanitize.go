// Package sanitize converts remote display names into filesystem-safe path
// segments.
package sanitize

import (
	"strings"
	"unicode"
)

const fallbackName = "untitled"

// maxSegment caps a single path segment well under common filesystem limits.
const maxSegment = 200

func isUnsafe(r rune) bool {
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		return true
	}
	return false
}

// Name returns a deterministic, filesystem-safe rendition of name. Illegal
// characters become underscores, control characters are dropped, and the
// result is never empty.
func Name(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range name {
		switch {
		case isUnsafe(r):
			b.WriteRune('_')
		case unicode.IsControl(r):
			// drop
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(b.String())
	// Trailing dots are not representable on Windows.
	cleaned = strings.TrimRight(cleaned, ". ")

	runes := []rune(cleaned)
	if len(runes) > maxSegment {
		cleaned = strings.TrimSpace(string(runes[:maxSegment]))
	}

	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return fallbackName
	}
	return cleaned
}
