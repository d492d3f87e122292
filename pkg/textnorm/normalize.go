// Package textnorm canonicalizes free text for fuzzy comparison.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases the input, strips diacritics via NFKD decomposition
// and removes every rune that is not an ASCII letter, digit, underscore or
// whitespace. The result is stable under repeated application.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)

	// NFKD-decompose and drop combining marks, e.g. "cálculo" -> "calculo".
	stripper := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	if stripped, _, err := transform.String(stripper, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Fields normalizes the input and splits it into whitespace-separated words,
// discarding empty strings.
func Fields(s string) []string {
	return strings.Fields(Normalize(s))
}
