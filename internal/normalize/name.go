package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold returns the NFKC-normalised, Unicode case-folded form of a supplier
// name. Whitespace is left untouched.
func Fold(name string) string {
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Fold().String(norm.NFKC.String(name))
}

// ProcessName folds the name, replaces every rune that is not a letter or a
// digit with a space and collapses runs of whitespace.
func ProcessName(name string) string {
	folded := Fold(name)
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(mapped), " ")
}

// Tokens splits a processed name into its whitespace-delimited tokens.
func Tokens(name string) []string {
	return strings.Fields(ProcessName(name))
}

// TokenSort returns the processed name with its tokens sorted
// alphabetically, so "Corp Acme" and "Acme Corp" produce the same string.
func TokenSort(name string) string {
	tokens := Tokens(name)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
