// Package cluster groups supplier records whose names are close enough to be
// the same supplier, picks the highest-spend record of each group as its
// representative and rolls the group's spend up onto it.
package cluster

import (
	"fmt"
	"runtime"
	"strings"
)

// Record is one input row. Its position in the slice handed to Build is its
// identity; names may repeat.
type Record struct {
	Name  string  `json:"name"`
	Spend float64 `json:"spend"`

	// OriginalOrder is the 1-based row position in the source sheet. It is
	// only carried through for display.
	OriginalOrder int `json:"original_order"`
}

// Match is a candidate record and its similarity score against the record
// whose match list it belongs to.
type Match struct {
	Index int `json:"index"`
	Score int `json:"score"`
}

// Group is a representative plus the records folded into it.
type Group struct {
	Representative int `json:"representative"`

	// Origin is the record whose iteration created the group. It equals
	// Representative unless a matched record had higher spend.
	Origin int `json:"origin"`

	// Members excludes the representative and is sorted ascending.
	Members    []int   `json:"members"`
	TotalSpend float64 `json:"total_spend"`
}

// Size is the number of records in the group, representative included.
func (g Group) Size() int {
	return len(g.Members) + 1
}

// Indices returns the representative followed by the members.
func (g Group) Indices() []int {
	out := make([]int, 0, g.Size())
	out = append(out, g.Representative)
	return append(out, g.Members...)
}

// GatePolicy decides which pairs are scored at all.
type GatePolicy string

const (
	// GateSubstring only scores pairs where one case-folded name contains
	// the other.
	GateSubstring GatePolicy = "substring"

	// GateAll scores every pair.
	GateAll GatePolicy = "all"
)

// ParseGatePolicy parses a policy name. An empty string selects the default.
func ParseGatePolicy(s string) (GatePolicy, error) {
	switch GatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", GateSubstring:
		return GateSubstring, nil
	case GateAll:
		return GateAll, nil
	default:
		return "", fmt.Errorf("unknown gate policy %q (want %q or %q)", s, GateSubstring, GateAll)
	}
}

// DefaultThreshold is the minimum score for two names to match.
const DefaultThreshold = 85

// Options configures a Builder.
type Options struct {
	// Threshold is the minimum score, 0..100, for a pair to match.
	Threshold int

	// Workers bounds the scoring phase. Zero means runtime.NumCPU().
	Workers int

	Gate GatePolicy

	// Limit keeps only the best Limit matches per record when Gate is
	// GateAll. Zero keeps all of them.
	Limit int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Threshold: DefaultThreshold,
		Workers:   runtime.NumCPU(),
		Gate:      GateSubstring,
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.Threshold < 0 || o.Threshold > 100 {
		return fmt.Errorf("threshold %d out of range 0..100", o.Threshold)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", o.Workers)
	}
	if o.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", o.Limit)
	}
	if _, err := ParseGatePolicy(string(o.Gate)); err != nil {
		return err
	}
	return nil
}

// Result is the output of one Build pass.
type Result struct {
	Groups []Group `json:"groups"`

	// Matches holds the match list of every record, indexed like the input.
	Matches [][]Match `json:"-"`

	// Failures lists the records whose match list could not be computed.
	// Those records were grouped as if they had no matches.
	Failures []*ScoringError `json:"-"`
}

// AuditEntry describes a decision that changed group membership away from
// the plain reading of the match lists.
type AuditEntry struct {
	Kind    string `json:"kind"`
	Record  int    `json:"record"`
	Related []int  `json:"related,omitempty"`
	Detail  string `json:"detail"`
}

// Audit entry kinds.
const (
	AuditScoringFailure = "scoring_failure"
	AuditAmbiguousName  = "ambiguous_name"
	AuditAlreadyGrouped = "already_grouped"
)

// Auditor receives audit entries. Implementations must be safe for
// concurrent use.
type Auditor interface {
	Audit(entry AuditEntry)
}

type nopAuditor struct{}

func (nopAuditor) Audit(AuditEntry) {}
