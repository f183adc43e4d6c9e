package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// BundleStorage implements the BundleStorage interface for Badger
type BundleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBundleStorage creates a new BundleStorage instance
func NewBundleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BundleStorage {
	return &BundleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BundleStorage) Save(ctx context.Context, bundle *models.Bundle) error {
	if bundle.Provider == "" {
		return fmt.Errorf("bundle provider is required")
	}
	if bundle.ID == "" {
		bundle.ID = bundle.Key()
	}
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(bundle.ID, bundle); err != nil {
		return fmt.Errorf("failed to save bundle: %w", err)
	}
	return nil
}

func (s *BundleStorage) Get(ctx context.Context, key string) (*models.Bundle, error) {
	var bundle models.Bundle
	if err := s.db.Store().Get(key, &bundle); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bundle: %w", err)
	}
	return &bundle, nil
}

func (s *BundleStorage) ListByProvider(ctx context.Context, provider models.Provider) ([]*models.Bundle, error) {
	return s.list(badgerhold.Where("Provider").Eq(provider).Index("Provider"))
}

func (s *BundleStorage) ListReady(ctx context.Context, provider models.Provider) ([]*models.Bundle, error) {
	return s.list(badgerhold.Where("Provider").Eq(provider).Index("Provider").
		And("ReadyForBuild").Eq(true))
}

func (s *BundleStorage) ListCompleted(ctx context.Context, provider models.Provider) ([]*models.Bundle, error) {
	return s.list(badgerhold.Where("Provider").Eq(provider).Index("Provider").
		And("BuildComplete").Eq(true))
}

func (s *BundleStorage) list(query *badgerhold.Query) ([]*models.Bundle, error) {
	var bundles []models.Bundle
	if err := s.db.Store().Find(&bundles, query.SortBy("CreatedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}

	result := make([]*models.Bundle, len(bundles))
	for i := range bundles {
		result[i] = &bundles[i]
	}
	return result, nil
}
