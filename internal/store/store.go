package store

import (
	"context"
	"errors"

	"github.com/inkmark/inkmark-backend/internal/types"
)

// ErrNotFound is returned by every ConversionStore implementation for an
// unknown conversion id.
var ErrNotFound = errors.New("conversion not found")

// ConversionStore is the persistence contract the orchestrator depends on.
// Exactly one production implementation runs at a time, selected by
// PERSISTENCE_MODE; see repos.ConversionRepo (postgres/sqlite), JSONFileStore
// and MemoryStore.
type ConversionStore interface {
	Create(ctx context.Context, c *types.Conversion) error
	GetByID(ctx context.Context, id string) (*types.Conversion, error)
	// List returns records ordered newest-first by creation time, plus the
	// total record count.
	List(ctx context.Context, limit, offset int) ([]*types.Conversion, int64, error)
	Update(ctx context.Context, c *types.Conversion) error
	DeleteByID(ctx context.Context, id string) error
}
