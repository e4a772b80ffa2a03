package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// CacheStorage persists scan cache entries in badgerhold. RepositoryPath is
// indexed so invalidation can sweep a path without knowing its commits.
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStore {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

// PutEntry upserts an entry by key.
func (s *CacheStorage) PutEntry(entry *models.CacheEntry) error {
	if entry == nil || entry.Key == "" {
		return fmt.Errorf("cache entry key is required")
	}
	if err := s.db.Store().Upsert(entry.Key, entry); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// GetEntry returns an entry, or nil when absent.
func (s *CacheStorage) GetEntry(key string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := s.db.Store().Get(key, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return &entry, nil
}

// DeleteEntry removes one entry. Absent keys are not an error.
func (s *CacheStorage) DeleteEntry(key string) error {
	if err := s.db.Store().Delete(key, &models.CacheEntry{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteByRepositoryPath removes every entry for a repository path and
// returns the number removed.
func (s *CacheStorage) DeleteByRepositoryPath(repoPath string) (int, error) {
	var entries []models.CacheEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("RepositoryPath").Eq(repoPath)); err != nil {
		return 0, fmt.Errorf("failed to find cache entries: %w", err)
	}

	removed := 0
	for i := range entries {
		if err := s.DeleteEntry(entries[i].Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ListEntries returns entries newest first.
func (s *CacheStorage) ListEntries(limit int) ([]*models.CacheEntry, error) {
	q := badgerhold.Where("RepositoryPath").Ne("").SortBy("CachedAt").Reverse()
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []models.CacheEntry
	if err := s.db.Store().Find(&entries, q); err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}

	result := make([]*models.CacheEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

// CountEntries returns the number of stored entries.
func (s *CacheStorage) CountEntries() (int, error) {
	count, err := s.db.Store().Count(&models.CacheEntry{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return int(count), nil
}

// DeleteOlderThan removes entries cached before the cutoff and returns the
// number removed.
func (s *CacheStorage) DeleteOlderThan(cutoff time.Time) (int, error) {
	var entries []models.CacheEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("CachedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find expired cache entries: %w", err)
	}

	removed := 0
	for i := range entries {
		if err := s.DeleteEntry(entries[i].Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ClearEntries removes every entry.
func (s *CacheStorage) ClearEntries() error {
	if err := s.db.Store().DeleteMatching(&models.CacheEntry{}, badgerhold.Where("RepositoryPath").Ne("")); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return nil
}
