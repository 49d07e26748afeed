package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spend-intake/internal/cluster"
)

var _ cluster.Auditor = (*Tracker)(nil)

func TestTrackerConcurrentAudit(t *testing.T) {
	tr := NewTracker("run-1", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := cluster.AuditScoringFailure
			if i%2 == 0 {
				kind = cluster.AuditAlreadyGrouped
			}
			tr.Audit(cluster.AuditEntry{Kind: kind, Record: i})
		}(i)
	}
	wg.Wait()

	assert.Len(t, tr.Entries(), 50)
	assert.Equal(t, map[string]int{
		cluster.AuditScoringFailure: 25,
		cluster.AuditAlreadyGrouped: 25,
	}, tr.Counts())
}

func TestTrackerEntriesIsCopy(t *testing.T) {
	tr := NewTracker("run-1", nil)
	tr.Audit(cluster.AuditEntry{Kind: cluster.AuditAmbiguousName, Record: 3, Related: []int{3, 9}})

	entries := tr.Entries()
	entries[0].Record = 100
	assert.Equal(t, 3, tr.Entries()[0].Record)
	assert.False(t, tr.Entries()[0].RecordedAt.IsZero())
}

func TestFlushEmptyIsNoop(t *testing.T) {
	tr := NewTracker("run-1", nil)
	n, err := tr.Flush(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlushAndHistory(t *testing.T) {
	dsn := os.Getenv("SPEND_TEST_DSN")
	if dsn == "" {
		t.Skip("SPEND_TEST_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	runID := fmt.Sprintf("audit-test-%d", os.Getpid())
	tr := NewTracker(runID, nil)
	tr.Audit(cluster.AuditEntry{Kind: cluster.AuditAlreadyGrouped, Record: 2, Related: []int{0}, Detail: "matched by 0"})
	tr.Audit(cluster.AuditEntry{Kind: cluster.AuditScoringFailure, Record: 5, Detail: "invalid UTF-8"})

	n, err := tr.Flush(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, tr.Entries())

	history, err := History(ctx, db, runID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, cluster.AuditAlreadyGrouped, history[0].Kind)
	assert.Equal(t, []int{0}, history[0].Related)
	assert.Equal(t, "invalid UTF-8", history[1].Detail)
}
