package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spend-intake/internal/cluster"
	"github.com/spend-intake/internal/debug"
	"github.com/spend-intake/internal/store"
)

// ErrNoData is returned by a Source that has nothing to serve yet.
var ErrNoData = errors.New("no supplier data available")

// Snapshot is one consistent view of records and their groups.
type Snapshot struct {
	Records  []cluster.Record
	Groups   []cluster.Group
	Failures int
	BuiltAt  time.Time
	Names    *cluster.NameIndex

	// groupOf maps a record index to its group position.
	groupOf []int
}

// NewSnapshot indexes groups by record. Every record must belong to exactly
// one group.
func NewSnapshot(records []cluster.Record, groups []cluster.Group, failures int, names *cluster.NameIndex) (*Snapshot, error) {
	groupOf := make([]int, len(records))
	for i := range groupOf {
		groupOf[i] = -1
	}
	for pos, g := range groups {
		for _, idx := range g.Indices() {
			if idx < 0 || idx >= len(records) {
				return nil, fmt.Errorf("group %d references record %d of %d", pos, idx, len(records))
			}
			if groupOf[idx] >= 0 {
				return nil, fmt.Errorf("record %d is in groups %d and %d", idx, groupOf[idx], pos)
			}
			groupOf[idx] = pos
		}
	}
	for idx, pos := range groupOf {
		if pos < 0 {
			return nil, fmt.Errorf("record %d is in no group", idx)
		}
	}
	if names == nil {
		names = cluster.NewNameIndex(records, nil, nil)
	}
	return &Snapshot{
		Records:  records,
		Groups:   groups,
		Failures: failures,
		BuiltAt:  time.Now().UTC(),
		Names:    names,
		groupOf:  groupOf,
	}, nil
}

// GroupOf returns the group position holding record idx.
func (s *Snapshot) GroupOf(idx int) (int, bool) {
	if idx < 0 || idx >= len(s.groupOf) {
		return 0, false
	}
	return s.groupOf[idx], true
}

// Source supplies the snapshot a request is answered from.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// StaticSource serves one precomputed snapshot.
type StaticSource struct {
	snap *Snapshot
}

// NewStaticSource wraps snap.
func NewStaticSource(snap *Snapshot) *StaticSource {
	return &StaticSource{snap: snap}
}

// Snapshot implements Source.
func (s *StaticSource) Snapshot(context.Context) (*Snapshot, error) {
	if s.snap == nil {
		return nil, ErrNoData
	}
	return s.snap, nil
}

// SupplierStore is the read side of the store StoreSource needs.
// *store.Store satisfies it.
type SupplierStore interface {
	Suppliers(ctx context.Context) ([]store.Supplier, error)
	RunLabels(ctx context.Context) ([]string, error)
	Groups(ctx context.Context, runLabel string) ([]store.StoredGroup, error)
}

// StoreSource reads suppliers and a stored run from Postgres on every call.
// With no stored run it clusters the suppliers itself when Builder is set,
// and reuses that result until the supplier table changes.
type StoreSource struct {
	Store    SupplierStore
	RunLabel string
	Builder  *cluster.Builder
	Logger   *zap.Logger

	mu       sync.Mutex
	built    *Snapshot
	builtKey supplierKey
}

// supplierKey identifies a supplier table state. ReplaceSuppliers always
// issues fresh ids, so count and highest id change on every import.
type supplierKey struct {
	count int
	maxID int64
}

func keyOf(suppliers []store.Supplier) supplierKey {
	k := supplierKey{count: len(suppliers)}
	for _, sup := range suppliers {
		k.maxID = max(k.maxID, sup.ID)
	}
	return k
}

// Snapshot implements Source.
func (s *StoreSource) Snapshot(ctx context.Context) (*Snapshot, error) {
	logger := debug.OrNop(s.Logger)

	suppliers, err := s.Store.Suppliers(ctx)
	if err != nil {
		return nil, err
	}
	if len(suppliers) == 0 {
		return nil, ErrNoData
	}
	records := store.Records(suppliers)

	label := s.RunLabel
	if label == "" {
		labels, err := s.Store.RunLabels(ctx)
		if err != nil {
			return nil, err
		}
		if len(labels) > 0 {
			label = labels[0]
		}
	}

	if label != "" {
		stored, err := s.Store.Groups(ctx, label)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			groups, err := store.ToClusterGroups(stored, suppliers)
			if err != nil {
				return nil, fmt.Errorf("run %s: %w", label, err)
			}
			return NewSnapshot(records, groups, 0, cluster.NewNameIndex(records, logger, nil))
		}
	}

	if s.Builder == nil {
		return nil, ErrNoData
	}
	return s.buildOnce(ctx, keyOf(suppliers), records, logger)
}

// buildOnce clusters records unless a snapshot for the same supplier table
// is cached. Concurrent callers wait for a single build.
func (s *StoreSource) buildOnce(ctx context.Context, key supplierKey, records []cluster.Record, logger *zap.Logger) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.built != nil && s.builtKey == key {
		return s.built, nil
	}

	logger.Info("No stored run, clustering on request", zap.Int("suppliers", len(records)))
	result, err := s.Builder.Build(ctx, records)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(records, result.Groups, len(result.Failures), cluster.NewNameIndex(records, logger, nil))
	if err != nil {
		return nil, err
	}
	s.built, s.builtKey = snap, key
	return snap, nil
}
