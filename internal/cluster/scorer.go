package cluster

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/spend-intake/internal/normalize"
)

// preparedName caches the normalised forms of a name so each record is
// normalised once per pass rather than once per pair.
type preparedName struct {
	folded string
	sorted string
	runes  []rune
	err    error
}

func prepare(name string) preparedName {
	if !utf8.ValidString(name) {
		return preparedName{err: fmt.Errorf("name is not valid UTF-8")}
	}
	sorted := normalize.TokenSort(name)
	return preparedName{
		folded: normalize.Fold(name),
		sorted: sorted,
		runes:  []rune(sorted),
	}
}

// Score returns the token-order-insensitive similarity of two names in
// 0..100. It does not apply any gate.
func Score(a, b string) (int, error) {
	pa, pb := prepare(a), prepare(b)
	if pa.err != nil {
		return 0, fmt.Errorf("%w: %v", ErrScoringFailure, pa.err)
	}
	if pb.err != nil {
		return 0, fmt.Errorf("%w: %v", ErrScoringFailure, pb.err)
	}
	return similarity(pa, pb), nil
}

// Admits reports whether the gate lets the pair through to scoring.
func (p GatePolicy) Admits(a, b string) bool {
	return p.admits(prepare(a), prepare(b))
}

func (p GatePolicy) admits(a, b preparedName) bool {
	if p == GateAll {
		return true
	}
	// Containment is checked on the token-sorted forms too, otherwise the
	// gate would reject reordered names that score 100.
	return contains(a.folded, b.folded) || contains(a.sorted, b.sorted)
}

func contains(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func similarity(a, b preparedName) int {
	if a.folded == b.folded {
		return 100
	}
	if len(a.runes) == 0 || len(b.runes) == 0 {
		return 0
	}
	return ratio(a.runes, b.runes)
}

// ratio is the normalised indel similarity: 2*LCS / (len(a)+len(b)),
// scaled to 0..100 and rounded half to even, so 84.5 scores 84.
func ratio(a, b []rune) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	lcs := lcsLength(a, b)
	return int(math.RoundToEven(100 * float64(2*lcs) / float64(total)))
}

// lcsLength computes the longest common subsequence with a single DP row.
func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		diag := 0
		for j := 1; j <= len(b); j++ {
			up := row[j]
			if a[i-1] == b[j-1] {
				row[j] = diag + 1
			} else if row[j-1] > row[j] {
				row[j] = row[j-1]
			}
			diag = up
		}
	}
	return row[len(b)]
}
