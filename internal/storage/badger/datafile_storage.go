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

// DataFileStorage implements the DataFileStorage interface for Badger.
// Rows are keyed by the file's uniqueness key, so a repeated insert for the
// same (provider, name, period, cycle) collapses into an upsert.
type DataFileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDataFileStorage creates a new DataFileStorage instance
func NewDataFileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DataFileStorage {
	return &DataFileStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DataFileStorage) Save(ctx context.Context, file *models.DataFile) error {
	if file.Provider == "" || file.Name == "" {
		return fmt.Errorf("data file provider and name are required")
	}
	if file.ID == "" {
		file.ID = file.Key()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(file.ID, file); err != nil {
		return fmt.Errorf("failed to save data file: %w", err)
	}
	return nil
}

func (s *DataFileStorage) Get(ctx context.Context, key string) (*models.DataFile, error) {
	var file models.DataFile
	if err := s.db.Store().Get(key, &file); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get data file: %w", err)
	}
	return &file, nil
}

func (s *DataFileStorage) ListByBundle(ctx context.Context, provider models.Provider, year, month int, cycle models.Cycle) ([]*models.DataFile, error) {
	var files []models.DataFile
	query := badgerhold.Where("Provider").Eq(provider).Index("Provider").
		And("Year").Eq(year).
		And("Month").Eq(month).
		And("Cycle").Eq(cycle)
	if err := s.db.Store().Find(&files, query); err != nil {
		return nil, fmt.Errorf("failed to list data files for bundle: %w", err)
	}

	result := make([]*models.DataFile, len(files))
	for i := range files {
		result[i] = &files[i]
	}
	return result, nil
}

func (s *DataFileStorage) ListPending(ctx context.Context, provider models.Provider) ([]*models.DataFile, error) {
	var files []models.DataFile
	query := badgerhold.Where("Provider").Eq(provider).Index("Provider").
		And("OnDisk").Eq(false)
	if err := s.db.Store().Find(&files, query); err != nil {
		return nil, fmt.Errorf("failed to list pending data files: %w", err)
	}

	result := make([]*models.DataFile, len(files))
	for i := range files {
		result[i] = &files[i]
	}
	return result, nil
}
