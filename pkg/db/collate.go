package db

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns the Unicode case-folded form of s.
func Fold(s string) string {
	// A Caser keeps state, so each call gets its own.
	return cases.Fold().String(s)
}

// CompareTerms orders terms case-insensitively. It returns a negative number,
// zero or a positive number like strings.Compare.
func CompareTerms(a, b string) int {
	return strings.Compare(Fold(a), Fold(b))
}

// ContainsFold reports whether needle occurs in hay ignoring case.
func ContainsFold(hay, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(hay), Fold(needle))
}
