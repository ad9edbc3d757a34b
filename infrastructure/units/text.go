package units

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

// foldCaser is a package-level Unicode case folder for performance.
// This avoids creating a new caser for each string preparation.
var foldCaser = cases.Fold()

// normalizeText trims, case-folds and collapses internal whitespace so that
// "  Hiking  and Biking" and "hiking and biking" compare equal.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(foldCaser.String(s)), " ")
}

// tokenOverlap returns |A∩B| / |A∪B| over the distinct whitespace-delimited
// tokens of two normalized strings. Two empty inputs are identical.
func tokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	union := len(setA)
	shared := 0
	for tok := range setB {
		if _, ok := setA[tok]; ok {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1.0
	}
	return clampUnit(float64(shared) / float64(union))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// levenshteinSimilarity computes 1 - distance / maxRunes. The levenshtein
// library operates on runes, so lengths are measured in runes as well.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return clampUnit(1.0 - float64(distance)/float64(maxLen))
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
