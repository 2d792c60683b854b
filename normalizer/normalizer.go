// Package normalizer canonicalizes free-text place names so the rest of
// the pipeline can compare them byte-for-byte. Comuna names arrive with
// inconsistent accents, casing and stray punctuation ("Quilpué", "quilpue",
// "QUILPUE."), and all three must normalize to the same string.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD, drops the combining marks, and recomposes.
// This folds "é" to "e" and "ñ" to "n", which matches how the dataset's
// comuna index is keyed.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics, drops everything but letters,
// digits and spaces, and collapses runs of whitespace. It is idempotent:
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Transform only fails on invalid UTF-8; fall back to the raw
		// input so a bad byte cannot take down a query.
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
		// Punctuation and symbols are dropped entirely.
	}
	return strings.TrimRight(b.String(), " ")
}
