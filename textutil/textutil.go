// Package textutil holds the text normalization shared by the supplier
// filters and the keyword extractor. All comparisons in the admin screens are
// diacritic- and case-insensitive, so everything funnels through Fold.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripDiacritics removes combining marks via NFD decomposition
// ("São Paulo" -> "Sao Paulo"). Input is returned unchanged if the
// transform fails.
func StripDiacritics(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

// Fold normalizes a string for comparison: diacritics stripped, lowercased,
// internal whitespace collapsed to single spaces, trimmed.
func Fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(StripDiacritics(s)), " "))
}

// OnlyDigits drops every non-digit rune.
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
