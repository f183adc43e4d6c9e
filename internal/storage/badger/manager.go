package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	dataFile interfaces.DataFileStorage
	bundle   interfaces.BundleStorage
	pafKey   interfaces.PafKeyStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)
	logger.Info().Msg("Badger storage manager initialized")
	return manager, nil
}

// NewInMemoryManager creates a storage manager backed by an in-memory store
func NewInMemoryManager(logger arbor.ILogger) (interfaces.StorageManager, error) {
	db, err := NewInMemoryBadgerDB(logger)
	if err != nil {
		return nil, err
	}
	return newManager(db, logger), nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		dataFile: NewDataFileStorage(db, logger),
		bundle:   NewBundleStorage(db, logger),
		pafKey:   NewPafKeyStorage(db, logger),
		logger:   logger,
	}
}

// DataFileStorage returns the DataFile storage interface
func (m *Manager) DataFileStorage() interfaces.DataFileStorage {
	return m.dataFile
}

// BundleStorage returns the Bundle storage interface
func (m *Manager) BundleStorage() interfaces.BundleStorage {
	return m.bundle
}

// PafKeyStorage returns the PafKey storage interface
func (m *Manager) PafKeyStorage() interfaces.PafKeyStorage {
	return m.pafKey
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
