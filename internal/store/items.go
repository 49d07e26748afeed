package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Item is a persisted purchase item awaiting or holding a classification.
type Item struct {
	ID             int64
	Code           string
	Classification *Classification
}

// AddItems inserts item codes that are not stored yet. Blank codes are
// skipped. It returns the number of new rows.
func (s *Store) AddItems(ctx context.Context, codes []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO item (item_code)
		VALUES ($1)
		ON CONFLICT (item_code) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, code)
		if err != nil {
			return 0, fmt.Errorf("failed to insert item %q: %w", code, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to insert item %q: %w", code, err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return added, nil
}

// UnclassifiedItems returns up to limit items with id above afterID that
// have not been answered yet, in id order.
func (s *Store) UnclassifiedItems(ctx context.Context, afterID int64, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, item_code
		FROM item
		WHERE valid IS NULL AND item_id > $1
		ORDER BY item_id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unclassified items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Code); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateItemClassification stores the taxonomy assignment of one item.
func (s *Store) UpdateItemClassification(ctx context.Context, id int64, c Classification) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE item
		SET valid = $1, classification_code = $2, classification_name = $3,
		    website = $4, comments = $5, classified_at = $6
		WHERE item_id = $7`,
		c.Valid, c.Code, c.Name, c.Website, c.Comments, c.ClassifiedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("item %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// ClassifiedItemCount returns how many items have been answered, valid or
// not.
func (s *Store) ClassifiedItemCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM item WHERE valid IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count classified items: %w", err)
	}
	return n, nil
}
