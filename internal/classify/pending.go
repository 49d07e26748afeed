package classify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spend-intake/internal/store"
)

// invalidCode marks an answered subject the model could not validate, so
// it is not picked up again.
const invalidCode = "INVALID"

// Repository is the storage the pending run reads from and writes to.
// *store.Store satisfies it.
type Repository interface {
	Unclassified(ctx context.Context, limit int) ([]store.Supplier, error)
	UpdateClassification(ctx context.Context, id int64, c store.Classification) error
}

// ItemRepository is the item storage ClassifyItems works through.
// *store.Store satisfies it.
type ItemRepository interface {
	UnclassifiedItems(ctx context.Context, afterID int64, limit int) ([]store.Item, error)
	UpdateItemClassification(ctx context.Context, id int64, c store.Classification) error
	ClassifiedItemCount(ctx context.Context) (int, error)
}

// Summary counts what a pending run did. Total is the number of stored
// subjects classified once the run ends, where the repository reports it.
type Summary struct {
	Attempted  int `json:"attempted"`
	Classified int `json:"classified"`
	Failed     int `json:"failed"`
	Batches    int `json:"batches,omitempty"`
	Total      int `json:"total_classified,omitempty"`
}

func toClassification(r *Result, now time.Time) store.Classification {
	cls := store.Classification{
		Valid:        r.Validation,
		Code:         r.ClassificationCode,
		Name:         r.ClassificationName,
		Website:      r.Website,
		Comments:     r.Comments,
		ClassifiedAt: now,
	}
	if cls.Code == "" {
		cls.Code = invalidCode
	}
	return cls
}

// ClassifyPending classifies up to limit stored suppliers that have no
// classification yet, highest spend first, and saves each answer.
func (c *Classifier) ClassifyPending(ctx context.Context, repo Repository, limit int) (Summary, error) {
	suppliers, err := repo.Unclassified(ctx, limit)
	if err != nil {
		return Summary{}, err
	}

	names := make([]string, len(suppliers))
	for i, sup := range suppliers {
		names[i] = sup.Record.Name
	}

	outcomes, err := c.ClassifyAll(ctx, names)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Attempted: len(outcomes), Batches: 1}
	now := time.Now().UTC()
	for _, out := range outcomes {
		if out.Err != nil {
			summary.Failed++
			continue
		}
		if err := repo.UpdateClassification(ctx, suppliers[out.Index].ID, toClassification(out.Result, now)); err != nil {
			return summary, fmt.Errorf("failed to save classification: %w", err)
		}
		summary.Classified++
	}

	c.logger.Info("Classification run complete",
		zap.Int("attempted", summary.Attempted),
		zap.Int("classified", summary.Classified),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// ClassifyItems works through unanswered items batch by batch until limit
// items have been attempted or none are left. Items that fail stay
// unanswered for a later run but are not retried within this one.
func (c *Classifier) ClassifyItems(ctx context.Context, repo ItemRepository, limit, batch int) (Summary, error) {
	if batch < 1 {
		batch = limit
	}

	var (
		summary Summary
		afterID int64
	)
	for summary.Attempted < limit {
		items, err := repo.UnclassifiedItems(ctx, afterID, min(batch, limit-summary.Attempted))
		if err != nil {
			return summary, err
		}
		if len(items) == 0 {
			c.logger.Info("No more items to classify")
			break
		}
		afterID = items[len(items)-1].ID

		codes := make([]string, len(items))
		for i, it := range items {
			codes[i] = it.Code
		}
		outcomes, err := c.ClassifyAllItems(ctx, codes)
		if err != nil {
			return summary, err
		}

		now := time.Now().UTC()
		for _, out := range outcomes {
			if out.Err != nil {
				summary.Failed++
				continue
			}
			if err := repo.UpdateItemClassification(ctx, items[out.Index].ID, toClassification(out.Result, now)); err != nil {
				return summary, fmt.Errorf("failed to save item classification: %w", err)
			}
			summary.Classified++
		}
		summary.Attempted += len(items)
		summary.Batches++

		c.logger.Info("Item batch complete",
			zap.Int("batch", summary.Batches),
			zap.Int("items", len(items)),
			zap.Int("attempted", summary.Attempted))
	}

	total, err := repo.ClassifiedItemCount(ctx)
	if err != nil {
		return summary, err
	}
	summary.Total = total

	c.logger.Info("Item classification run complete",
		zap.Int("attempted", summary.Attempted),
		zap.Int("classified", summary.Classified),
		zap.Int("failed", summary.Failed),
		zap.Int("total_classified", summary.Total))
	return summary, nil
}
