package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spend-intake/internal/cluster"
	"github.com/spend-intake/internal/debug"
)

// Tracker collects clustering audit entries in memory and writes them to
// the cluster_audit table on Flush. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	runID   string
	entries []Entry
	logger  *zap.Logger
}

// Entry is one recorded decision.
type Entry struct {
	cluster.AuditEntry
	RecordedAt time.Time `json:"recorded_at"`
}

// NewTracker creates a tracker for one run.
func NewTracker(runID string, logger *zap.Logger) *Tracker {
	return &Tracker{runID: runID, logger: debug.OrNop(logger)}
}

// RunID returns the run label entries are stored under.
func (t *Tracker) RunID() string {
	return t.runID
}

// Audit records an entry. It satisfies cluster.Auditor.
func (t *Tracker) Audit(entry cluster.AuditEntry) {
	t.mu.Lock()
	t.entries = append(t.entries, Entry{AuditEntry: entry, RecordedAt: time.Now().UTC()})
	t.mu.Unlock()

	t.logger.Debug("Audit entry",
		zap.String("kind", entry.Kind),
		zap.Int("record", entry.Record),
		zap.Ints("related", entry.Related))
}

// Entries returns a copy of everything recorded so far.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Counts returns the number of entries per kind.
func (t *Tracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range t.entries {
		counts[e.Kind]++
	}
	return counts
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS cluster_audit (
	audit_id    bigserial PRIMARY KEY,
	run_label   text NOT NULL,
	kind        text NOT NULL,
	record_idx  integer NOT NULL,
	detail_json jsonb NOT NULL,
	recorded_at timestamptz NOT NULL DEFAULT now()
);
`

// Flush writes all pending entries in one transaction and clears them.
// Entries stay pending if the write fails.
func (t *Tracker) Flush(ctx context.Context, db *sql.DB) (int, error) {
	done := debug.Timing(t.logger, "audit flush")
	defer done()

	t.mu.Lock()
	pending := make([]Entry, len(t.entries))
	copy(pending, t.entries)
	t.mu.Unlock()

	if len(pending) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, auditSchema); err != nil {
		return 0, fmt.Errorf("failed to create audit table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cluster_audit (run_label, kind, record_idx, detail_json, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range pending {
		detail, err := json.Marshal(e.AuditEntry)
		if err != nil {
			return 0, fmt.Errorf("failed to encode audit entry: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, t.runID, e.Kind, e.Record, detail, e.RecordedAt); err != nil {
			return 0, fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.mu.Lock()
	t.entries = t.entries[len(pending):]
	t.mu.Unlock()

	t.logger.Info("Flushed audit entries",
		zap.String("run", t.runID),
		zap.Int("count", len(pending)))
	return len(pending), nil
}

// History returns the stored entries of a run, oldest first.
func History(ctx context.Context, db *sql.DB, runID string) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT detail_json, recorded_at
		FROM cluster_audit
		WHERE run_label = $1
		ORDER BY audit_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit history: %w", err)
	}
	defer rows.Close()

	var history []Entry
	for rows.Next() {
		var (
			raw   []byte
			entry Entry
		)
		if err := rows.Scan(&raw, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		if err := json.Unmarshal(raw, &entry.AuditEntry); err != nil {
			return nil, fmt.Errorf("failed to decode audit row: %w", err)
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}
