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

// PafKeyStorage implements the PafKeyStorage interface for Badger. Keys are
// stored under their own value, so saving a known key is a no-op upsert.
type PafKeyStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPafKeyStorage creates a new PafKeyStorage instance
func NewPafKeyStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PafKeyStorage {
	return &PafKeyStorage{
		db:     db,
		logger: logger,
	}
}

func (s *PafKeyStorage) Save(ctx context.Context, key *models.PafKey) error {
	if key.Value == "" {
		return fmt.Errorf("paf key value is required")
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}

	// Preserve the original CreatedAt when the key already exists
	var existing models.PafKey
	if err := s.db.Store().Get(key.Value, &existing); err == nil {
		return nil
	} else if err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to check paf key: %w", err)
	}

	if err := s.db.Store().Insert(key.Value, key); err != nil {
		return fmt.Errorf("failed to save paf key: %w", err)
	}
	return nil
}

func (s *PafKeyStorage) List(ctx context.Context) ([]*models.PafKey, error) {
	var keys []models.PafKey
	if err := s.db.Store().Find(&keys, badgerhold.Where("Value").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list paf keys: %w", err)
	}

	result := make([]*models.PafKey, len(keys))
	for i := range keys {
		result[i] = &keys[i]
	}
	return result, nil
}
