package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	job    interfaces.JobStorage
	logger arbor.ILogger
}

var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager opens the database and wires the per-type storages
func NewManager(logger arbor.ILogger, config common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		job:    NewJobStorage(db, logger),
		logger: logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the scrape job storage
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// DB returns the underlying BadgerDB connection
func (m *Manager) DB() interface{} {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Badger storage manager")
	return m.db.Close()
}
