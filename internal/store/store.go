// Package store persists suppliers, items, clustering runs and
// classifications in Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/spend-intake/internal/cluster"
)

// Store wraps the Postgres tables used by spendctl.
type Store struct {
	db *sql.DB
}

// New creates a store on an open connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Supplier is a persisted supplier row.
type Supplier struct {
	ID             int64
	Record         cluster.Record
	Classification *Classification
}

// Classification is the taxonomy assignment for a supplier or item.
type Classification struct {
	Valid        bool
	Code         string
	Name         string
	Website      string
	Comments     string
	ClassifiedAt time.Time
}

// StoredGroup is one persisted group of a clustering run.
type StoredGroup struct {
	Position         int
	RepresentativeID int64
	MemberIDs        []int64
	TotalSpend       float64
}

const schema = `
CREATE TABLE IF NOT EXISTS supplier (
	supplier_id         bigserial PRIMARY KEY,
	supplier_name       text NOT NULL,
	spend               numeric(18,2) NOT NULL DEFAULT 0 CHECK (spend >= 0),
	original_order      integer NOT NULL,
	valid               boolean,
	classification_code text,
	classification_name text,
	website             text,
	comments            text,
	classified_at       timestamptz
);

CREATE INDEX IF NOT EXISTS idx_supplier_name ON supplier (supplier_name);

CREATE TABLE IF NOT EXISTS supplier_group (
	group_id          bigserial PRIMARY KEY,
	run_label         text NOT NULL,
	position          integer NOT NULL,
	representative_id bigint NOT NULL REFERENCES supplier(supplier_id) ON DELETE CASCADE,
	member_ids        bigint[] NOT NULL DEFAULT '{}',
	total_spend       numeric(18,2) NOT NULL,
	created_at        timestamptz NOT NULL DEFAULT now(),
	UNIQUE (run_label, position)
);

CREATE TABLE IF NOT EXISTS item (
	item_id             bigserial PRIMARY KEY,
	item_code           text NOT NULL UNIQUE,
	valid               boolean,
	classification_code text,
	classification_name text,
	website             text,
	comments            text,
	classified_at       timestamptz
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ReplaceSuppliers swaps the whole supplier table for records, dropping
// every stored run with it. It returns the number of rows written.
func (s *Store) ReplaceSuppliers(ctx context.Context, records []cluster.Record) (int, error) {
	if err := cluster.ValidateRecords(records); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM supplier_group`); err != nil {
		return 0, fmt.Errorf("failed to clear groups: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM supplier`); err != nil {
		return 0, fmt.Errorf("failed to clear suppliers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("supplier", "supplier_name", "spend", "original_order"))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.Name, rec.Spend, rec.OriginalOrder); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to copy supplier %q: %w", rec.Name, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(records), nil
}

const supplierColumns = `
	supplier_id, supplier_name, spend, original_order,
	valid, classification_code, classification_name, website, comments, classified_at`

// Suppliers returns every supplier in original order.
func (s *Store) Suppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT`+supplierColumns+`
		FROM supplier
		ORDER BY original_order, supplier_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query suppliers: %w", err)
	}
	defer rows.Close()
	return scanSuppliers(rows)
}

// Unclassified returns up to limit suppliers without a classification code.
func (s *Store) Unclassified(ctx context.Context, limit int) ([]Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT`+supplierColumns+`
		FROM supplier
		WHERE classification_code IS NULL OR classification_code = ''
		ORDER BY spend DESC, original_order
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unclassified suppliers: %w", err)
	}
	defer rows.Close()
	return scanSuppliers(rows)
}

func scanSuppliers(rows *sql.Rows) ([]Supplier, error) {
	var out []Supplier
	for rows.Next() {
		var (
			sup                          Supplier
			valid                        sql.NullBool
			code, name, website, comment sql.NullString
			classifiedAt                 sql.NullTime
		)
		err := rows.Scan(
			&sup.ID, &sup.Record.Name, &sup.Record.Spend, &sup.Record.OriginalOrder,
			&valid, &code, &name, &website, &comment, &classifiedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		if code.Valid && code.String != "" {
			sup.Classification = &Classification{
				Valid:        valid.Bool,
				Code:         code.String,
				Name:         name.String,
				Website:      website.String,
				Comments:     comment.String,
				ClassifiedAt: classifiedAt.Time,
			}
		}
		out = append(out, sup)
	}
	return out, rows.Err()
}

// Records extracts the clustering input from suppliers, keeping order.
func Records(suppliers []Supplier) []cluster.Record {
	out := make([]cluster.Record, len(suppliers))
	for i, sup := range suppliers {
		out[i] = sup.Record
	}
	return out
}

// UpdateClassification stores the taxonomy assignment of one supplier.
func (s *Store) UpdateClassification(ctx context.Context, id int64, c Classification) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE supplier
		SET valid = $1, classification_code = $2, classification_name = $3,
		    website = $4, comments = $5, classified_at = $6
		WHERE supplier_id = $7`,
		c.Valid, c.Code, c.Name, c.Website, c.Comments, c.ClassifiedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update supplier %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update supplier %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("supplier %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// SaveGroups stores a clustering run under runLabel, replacing any earlier
// run with the same label. suppliers must be the slice the groups were built
// from.
func (s *Store) SaveGroups(ctx context.Context, runLabel string, suppliers []Supplier, groups []cluster.Group) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM supplier_group WHERE run_label = $1`, runLabel); err != nil {
		return fmt.Errorf("failed to clear run %s: %w", runLabel, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO supplier_group (run_label, position, representative_id, member_ids, total_spend)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for pos, g := range groups {
		memberIDs := make([]int64, len(g.Members))
		for i, idx := range g.Members {
			memberIDs[i] = suppliers[idx].ID
		}
		_, err := stmt.ExecContext(ctx, runLabel, pos, suppliers[g.Representative].ID, pq.Array(memberIDs), g.TotalSpend)
		if err != nil {
			return fmt.Errorf("failed to insert group %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Groups returns the groups of a run in stored order.
func (s *Store) Groups(ctx context.Context, runLabel string) ([]StoredGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, representative_id, member_ids, total_spend
		FROM supplier_group
		WHERE run_label = $1
		ORDER BY position`, runLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var out []StoredGroup
	for rows.Next() {
		var g StoredGroup
		if err := rows.Scan(&g.Position, &g.RepresentativeID, pq.Array(&g.MemberIDs), &g.TotalSpend); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RunLabels lists stored runs, newest first.
func (s *Store) RunLabels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_label
		FROM supplier_group
		GROUP BY run_label
		ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan run label: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// ToClusterGroups maps stored groups back onto indices of suppliers. Groups
// referencing suppliers that are no longer present are an error.
func ToClusterGroups(stored []StoredGroup, suppliers []Supplier) ([]cluster.Group, error) {
	index := make(map[int64]int, len(suppliers))
	for i, sup := range suppliers {
		index[sup.ID] = i
	}

	out := make([]cluster.Group, 0, len(stored))
	for _, sg := range stored {
		rep, ok := index[sg.RepresentativeID]
		if !ok {
			return nil, fmt.Errorf("group %d: unknown representative %d", sg.Position, sg.RepresentativeID)
		}
		members := make([]int, 0, len(sg.MemberIDs))
		for _, id := range sg.MemberIDs {
			idx, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("group %d: unknown member %d", sg.Position, id)
			}
			members = append(members, idx)
		}
		out = append(out, cluster.Group{
			Representative: rep,
			Origin:         rep,
			Members:        members,
			TotalSpend:     sg.TotalSpend,
		})
	}
	return out, nil
}
