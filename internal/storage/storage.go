package storage

import (
	"context"

	"github.com/nikhilgg/oss-transparency/internal/dataset"
)

// Storage is the optional warehouse sink for the rebuilt dataset. It always
// receives a full rebuild, so implementations replace table contents rather
// than merging.
type Storage interface {
	// Migrate creates the output tables if they do not exist
	Migrate(ctx context.Context) error

	// SaveDataset replaces the stored tables with the given rebuild
	SaveDataset(ctx context.Context, d *dataset.Dataset) error

	// TableCounts reports the stored row count per table
	TableCounts(ctx context.Context) (map[string]int, error)

	// Close releases the underlying connection
	Close() error
}
