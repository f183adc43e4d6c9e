package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// DataFileStorage persists discovered remote files. The discovery log is
// append-only: rows are inserted once and only mutated to record a download.
type DataFileStorage interface {
	// Save upserts a data file keyed by its uniqueness key
	Save(ctx context.Context, file *models.DataFile) error

	// Get returns the file with the given uniqueness key, or nil if unknown
	Get(ctx context.Context, key string) (*models.DataFile, error)

	// ListByBundle returns all files belonging to one bundle identity
	ListByBundle(ctx context.Context, provider models.Provider, year, month int, cycle models.Cycle) ([]*models.DataFile, error)

	// ListPending returns all files for the provider with OnDisk=false
	ListPending(ctx context.Context, provider models.Provider) ([]*models.DataFile, error)
}

// BundleStorage persists build units. Bundles are created lazily and never
// deleted; readiness and completion flags only move false to true.
type BundleStorage interface {
	Save(ctx context.Context, bundle *models.Bundle) error
	Get(ctx context.Context, key string) (*models.Bundle, error)
	ListByProvider(ctx context.Context, provider models.Provider) ([]*models.Bundle, error)

	// ListReady returns bundles with ReadyForBuild=true for the provider
	ListReady(ctx context.Context, provider models.Provider) ([]*models.Bundle, error)

	// ListCompleted returns bundles with BuildComplete=true for the provider
	ListCompleted(ctx context.Context, provider models.Provider) ([]*models.Bundle, error)
}

// PafKeyStorage persists Royal Mail credential keys, deduplicated by value
type PafKeyStorage interface {
	Save(ctx context.Context, key *models.PafKey) error
	List(ctx context.Context) ([]*models.PafKey, error)
}

// StorageManager aggregates the registry storage interfaces
type StorageManager interface {
	DataFileStorage() DataFileStorage
	BundleStorage() BundleStorage
	PafKeyStorage() PafKeyStorage
	Close() error
}
