package utils

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/width"
)

var keyCharPattern = regexp.MustCompile(`[^\p{Han}\p{L}\p{N}]`)

// NormalizeTitle folds width variants to their canonical form (fullwidth
// ASCII to halfwidth, halfwidth katakana to regular katakana) and trims
// surrounding whitespace so titles from different media servers compare equal.
func NormalizeTitle(s string) string {
	return strings.TrimSpace(width.Fold.String(s))
}

// SimilarityRatio returns a similarity score in [0,1] between two strings,
// based on the Levenshtein distance over runes. Identical strings score 1,
// fully distinct strings score 0.
func SimilarityRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	la := len([]rune(a))
	lb := len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// ContainsEither reports whether either string contains the other.
func ContainsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// KeyCharactersMatch compares two titles after stripping everything except
// letters, digits and Han characters. Titles whose key characters are equal,
// or highly similar for longer titles, are considered a match.
func KeyCharactersMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}

	keyA := strings.ToLower(keyCharPattern.ReplaceAllString(a, ""))
	keyB := strings.ToLower(keyCharPattern.ReplaceAllString(b, ""))

	if keyA == keyB {
		return keyA != ""
	}
	if len([]rune(keyA)) > 3 && len([]rune(keyB)) > 3 {
		return SimilarityRatio(keyA, keyB) > 0.9
	}
	return false
}
