package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
)

// Manager aggregates the Badger-backed stores behind one connection.
type Manager struct {
	db     *BadgerDB
	jobs   interfaces.JobStorage
	cache  interfaces.CacheStore
	logger arbor.ILogger
}

// NewManager opens the database and builds every store on top of it.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		jobs:   NewJobStorage(db, logger),
		cache:  NewCacheStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the durable job store.
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

// CacheStore returns the scan cache store.
func (m *Manager) CacheStore() interfaces.CacheStore {
	return m.cache
}

// DB returns the underlying database connection.
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// RunGC reclaims value-log space with the standard discard ratio. Wired into
// the maintenance scheduler.
func (m *Manager) RunGC() (int, error) {
	return m.db.RunGC(0.5)
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
