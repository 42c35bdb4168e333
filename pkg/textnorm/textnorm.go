// Package textnorm folds free text into comparable keys.
//
// Legacy clinic data mixes accented and unaccented spellings of the same
// names ("LABORATÓRIO" vs "LABORATORIO") and arbitrary casing, so every
// comparison in the migration goes through these helpers.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Upper trims s, collapses internal whitespace runs to a single space and
// uppercases the result. Accents are preserved.
func Upper(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// Fold is Upper with diacritics removed.
func Fold(s string) string {
	// transform.Chain keeps state, so a fresh one is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return Upper(out)
}

// Tokens returns the folded words of s with punctuation treated as a separator.
// "DRA. JULIANA" yields ["DRA", "JULIANA"].
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Compact joins Tokens with single spaces.
func Compact(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Substitution costs as much as a deletion plus an insertion, so the
// distance below is the indel distance and Ratio stays within 0..100.
var indelParams = levenshtein.NewParams().SubCost(2)

// Ratio is the normalized indel similarity of a and b, from 0 to 100.
// It compares the strings as given; fold them first for loose matching.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	d := levenshtein.Distance(a, b, indelParams)
	return 100 * (1 - float64(d)/float64(total))
}
