package clinicians

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vicentefritzen/petsys-migracao/pkg/textnorm"
)

const (
	unbaseScale     = 0.95
	partialScale    = 0.9
	farPartialScale = 0.6

	// minTokenScore is how close the best pair of name tokens must be before
	// two names are compared at all. "CARLA" and "CARLOS" score 72.
	minTokenScore = 80
)

// titles are honorifics that say nothing about who wrote an entry.
var titles = map[string]bool{
	"DR":      true,
	"DRA":     true,
	"DOUTOR":  true,
	"DOUTORA": true,
	"MV":      true,
	"M":       true,
	"V":       true,
}

// Similarity scores how alike two person names are, from 0 to 100.
//
// Names are folded (case, accents, punctuation) before comparison. The score
// is the best of a plain edit ratio and token-based ratios, so that a short
// form like "DRA JULIANA" still scores well against "DRA. JULIANA FARBER
// METZLER" while unrelated names stay low.
//
// Titles such as DR, DRA and MV are dropped before scoring. A name made only
// of titles scores 0 against anything but itself, and so does any pair that
// shares no name token of at least minTokenScore.
func Similarity(a, b string) float64 {
	if ca, cb := textnorm.Compact(a), textnorm.Compact(b); ca == "" || cb == "" {
		return 0
	} else if ca == cb {
		return 100
	}

	ta, tb := nameTokens(a), nameTokens(b)
	if !shareToken(ta, tb) {
		return 0
	}
	a, b = strings.Join(ta, " "), strings.Join(tb, " ")
	if a == b {
		return 100
	}

	base := textnorm.Ratio(a, b)

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	lenRatio := float64(max(la, lb)) / float64(min(la, lb))

	if lenRatio < 1.5 {
		return max(base,
			tokenSortRatio(a, b)*unbaseScale,
			tokenSetRatio(a, b)*unbaseScale)
	}

	scale := partialScale
	if lenRatio >= 8 {
		scale = farPartialScale
	}
	return max(base,
		partialRatio(a, b)*scale,
		tokenSortRatio(a, b)*unbaseScale*scale,
		tokenSetRatio(a, b)*unbaseScale*scale)
}

// nameTokens returns the folded tokens of s without titles.
func nameTokens(s string) []string {
	toks := textnorm.Tokens(s)
	out := toks[:0]
	for _, tok := range toks {
		if !titles[tok] {
			out = append(out, tok)
		}
	}
	return out
}

func shareToken(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y || textnorm.Ratio(x, y) >= minTokenScore {
				return true
			}
		}
	}
	return false
}

// partialRatio is the best ratio of the shorter string against every
// same-length window of the longer one.
func partialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}

	s := string(short)
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		r := textnorm.Ratio(s, string(long[i:i+len(short)]))
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func tokenSortRatio(a, b string) float64 {
	return textnorm.Ratio(sortedTokens(a), sortedTokens(b))
}

// tokenSetRatio compares the shared tokens against each side's remainder.
// A name whose tokens are a subset of the other's scores 100.
func tokenSetRatio(a, b string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)

	var common, onlyA, onlyB []string
	for tok := range setA {
		if setB[tok] {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if !setA[tok] {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	if base != "" && (withA == base || withB == base) {
		return 100
	}

	best := textnorm.Ratio(withA, withB)
	if base != "" {
		best = max(best, textnorm.Ratio(base, withA), textnorm.Ratio(base, withB))
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

func sortedTokens(s string) string {
	toks := strings.Fields(s)
	sort.Strings(toks)
	return strings.Join(toks, " ")
}
