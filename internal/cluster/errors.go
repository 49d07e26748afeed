package cluster

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrScoringFailure marks a similarity computation that could not
	// complete. It is collected per record and never aborts a pass.
	ErrScoringFailure = errors.New("scoring failure")

	// ErrAmbiguousName marks a name that resolves to more than one record.
	ErrAmbiguousName = errors.New("ambiguous name resolution")

	// ErrInvalidSpend marks a negative or non-numeric spend. It is fatal for
	// the whole batch.
	ErrInvalidSpend = errors.New("invalid spend value")

	// ErrInvalidMatch marks a match list entry that does not point at
	// another record. It is fatal during grouping.
	ErrInvalidMatch = errors.New("invalid match")
)

// ScoringError records why the match list of one record is missing.
type ScoringError struct {
	Index int
	Name  string
	Err   error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring record %d (%q): %v", e.Index, e.Name, e.Err)
}

func (e *ScoringError) Unwrap() []error {
	return []error{ErrScoringFailure, e.Err}
}

// SpendError reports a record whose spend cannot be aggregated.
type SpendError struct {
	// Index is the record position, or the source row for loader errors.
	Index int
	Name  string
	Spend float64

	// Raw is the unparsed cell value when the spend was not numeric.
	Raw string
}

func (e *SpendError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("%v: record %d (%q) has non-numeric spend %q", ErrInvalidSpend, e.Index, e.Name, e.Raw)
	}
	return fmt.Sprintf("%v: record %d (%q) has spend %v", ErrInvalidSpend, e.Index, e.Name, e.Spend)
}

func (e *SpendError) Is(target error) bool {
	return target == ErrInvalidSpend
}

// ValidateRecords fails on the first record whose spend is negative, NaN or
// infinite.
func ValidateRecords(records []Record) error {
	for i, rec := range records {
		if !validSpend(rec.Spend) {
			return &SpendError{Index: i, Name: rec.Name, Spend: rec.Spend}
		}
	}
	return nil
}

func validSpend(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1) && !math.IsNaN(v)
}
