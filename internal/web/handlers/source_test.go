package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spend-intake/internal/cluster"
	"github.com/spend-intake/internal/store"
)

func TestNewSnapshotIndexesGroups(t *testing.T) {
	records := []cluster.Record{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	groups := []cluster.Group{
		{Representative: 1, Origin: 0, Members: []int{0}},
		{Representative: 2, Origin: 2, Members: []int{}},
	}

	snap, err := NewSnapshot(records, groups, 0, nil)
	require.NoError(t, err)

	pos, ok := snap.GroupOf(0)
	require.True(t, ok)
	assert.Equal(t, 0, pos)
	pos, _ = snap.GroupOf(2)
	assert.Equal(t, 1, pos)
	_, ok = snap.GroupOf(3)
	assert.False(t, ok)

	idx, ok := snap.Names.Resolve("b")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestNewSnapshotRejectsBrokenPartition(t *testing.T) {
	records := []cluster.Record{{Name: "a"}, {Name: "b"}}

	tests := []struct {
		name   string
		groups []cluster.Group
	}{
		{"missing record", []cluster.Group{{Representative: 0, Members: []int{}}}},
		{"duplicate record", []cluster.Group{{Representative: 0, Members: []int{1}}, {Representative: 1, Members: []int{}}}},
		{"out of range", []cluster.Group{{Representative: 0, Members: []int{1, 5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSnapshot(records, tt.groups, 0, nil)
			assert.Error(t, err)
		})
	}
}

func TestStaticSourceEmpty(t *testing.T) {
	_, err := NewStaticSource(nil).Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}

type fakeSupplierStore struct {
	suppliers []store.Supplier
	runs      map[string][]store.StoredGroup
	labels    []string
}

func (f *fakeSupplierStore) Suppliers(context.Context) ([]store.Supplier, error) {
	return f.suppliers, nil
}

func (f *fakeSupplierStore) RunLabels(context.Context) ([]string, error) {
	return f.labels, nil
}

func (f *fakeSupplierStore) Groups(_ context.Context, label string) ([]store.StoredGroup, error) {
	return f.runs[label], nil
}

func TestStoreSourceReusesBuiltSnapshot(t *testing.T) {
	fs := &fakeSupplierStore{suppliers: []store.Supplier{
		{ID: 1, Record: cluster.Record{Name: "Acme Corp", Spend: 100, OriginalOrder: 1}},
		{ID: 2, Record: cluster.Record{Name: "Corp Acme", Spend: 50, OriginalOrder: 2}},
	}}
	builder, err := cluster.NewBuilder(cluster.DefaultOptions(), nil, nil)
	require.NoError(t, err)
	src := &StoreSource{Store: fs, Builder: builder}

	first, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Groups, 1)

	second, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	fs.suppliers = append(fs.suppliers, store.Supplier{ID: 3, Record: cluster.Record{Name: "Globex", Spend: 75, OriginalOrder: 3}})
	third, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Len(t, third.Groups, 2)
}

func TestStoreSourcePrefersStoredRun(t *testing.T) {
	fs := &fakeSupplierStore{
		suppliers: []store.Supplier{
			{ID: 10, Record: cluster.Record{Name: "Acme", Spend: 1, OriginalOrder: 1}},
			{ID: 11, Record: cluster.Record{Name: "Globex", Spend: 2, OriginalOrder: 2}},
		},
		labels: []string{"run-2", "run-1"},
		runs: map[string][]store.StoredGroup{
			"run-2": {{Position: 0, RepresentativeID: 11, MemberIDs: []int64{10}, TotalSpend: 3}},
		},
	}
	src := &StoreSource{Store: fs}

	snap, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, 1, snap.Groups[0].Representative)

	src.RunLabel = "run-1"
	_, err = src.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
}
