package import_pkg

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spend-intake/internal/debug"
	"github.com/spend-intake/internal/store"
)

// SupplierImporter loads a supplier file and replaces the stored supplier
// table with it.
type SupplierImporter struct {
	store  *store.Store
	logger *zap.Logger
}

// NewSupplierImporter creates an importer writing to s.
func NewSupplierImporter(s *store.Store, logger *zap.Logger) *SupplierImporter {
	return &SupplierImporter{store: s, logger: debug.OrNop(logger)}
}

// Import loads path and stores its records. It returns the number imported.
func (si *SupplierImporter) Import(ctx context.Context, path, sheet string) (int, error) {
	done := debug.Timing(si.logger, "import "+path)
	defer done()

	si.logger.Info("Importing suppliers", zap.String("file", path), zap.String("sheet", sheet))

	records, err := LoadFile(path, sheet)
	if err != nil {
		return 0, err
	}

	if err := si.store.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	n, err := si.store.ReplaceSuppliers(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("failed to store suppliers: %w", err)
	}

	si.logger.Info("Import complete", zap.Int("records", n))
	return n, nil
}

// ItemImporter loads a file of item codes and adds the new ones to the
// stored item table.
type ItemImporter struct {
	store  *store.Store
	logger *zap.Logger
}

// NewItemImporter creates an importer writing to s.
func NewItemImporter(s *store.Store, logger *zap.Logger) *ItemImporter {
	return &ItemImporter{store: s, logger: debug.OrNop(logger)}
}

// Import loads path and stores codes not seen before. It returns the number
// of codes read and the number added.
func (ii *ItemImporter) Import(ctx context.Context, path, sheet string) (read, added int, err error) {
	ii.logger.Info("Importing items", zap.String("file", path), zap.String("sheet", sheet))

	codes, err := LoadItemCodes(path, sheet)
	if err != nil {
		return 0, 0, err
	}

	if err := ii.store.EnsureSchema(ctx); err != nil {
		return 0, 0, err
	}
	added, err = ii.store.AddItems(ctx, codes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to store items: %w", err)
	}

	ii.logger.Info("Item import complete", zap.Int("read", len(codes)), zap.Int("added", added))
	return len(codes), added, nil
}
