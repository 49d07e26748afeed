package cluster

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/spend-intake/internal/debug"
)

// NameIndex resolves exact supplier names back to record indices.
type NameIndex struct {
	byName  map[string][]int
	logger  *zap.Logger
	auditor Auditor
}

// NewNameIndex indexes records by exact name, keeping original order.
func NewNameIndex(records []Record, logger *zap.Logger, auditor Auditor) *NameIndex {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	byName := make(map[string][]int, len(records))
	for i, rec := range records {
		byName[rec.Name] = append(byName[rec.Name], i)
	}
	return &NameIndex{
		byName:  byName,
		logger:  debug.OrNop(logger),
		auditor: auditor,
	}
}

// Resolve returns the first record, in original order, named exactly name.
// When several records share the name the first still wins; the ambiguity
// is logged and audited but is not an error.
func (x *NameIndex) Resolve(name string) (int, bool) {
	hits := x.byName[name]
	if len(hits) == 0 {
		return 0, false
	}
	if len(hits) > 1 {
		x.logger.Warn("Ambiguous supplier name, using first occurrence",
			zap.String("name", name),
			zap.Ints("records", hits))
		x.auditor.Audit(AuditEntry{
			Kind:    AuditAmbiguousName,
			Record:  hits[0],
			Related: append([]int(nil), hits[1:]...),
			Detail:  fmt.Sprintf("%v: %q matches %d records", ErrAmbiguousName, name, len(hits)),
		})
	}
	return hits[0], true
}

// All returns every record index with the given name, in original order.
func (x *NameIndex) All(name string) []int {
	return append([]int(nil), x.byName[name]...)
}

// Duplicates returns the names that occur more than once.
func (x *NameIndex) Duplicates() map[string][]int {
	out := make(map[string][]int)
	for name, hits := range x.byName {
		if len(hits) > 1 {
			out[name] = append([]int(nil), hits...)
		}
	}
	return out
}
