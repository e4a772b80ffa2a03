package interfaces

import (
	"time"

	"github.com/ternarybob/geminus/internal/models"
)

// ScanCache stores scan results keyed by (repository path, short commit).
// Storage failures are swallowed: every operation degrades to the
// disabled/miss answer so cache trouble never affects scan correctness.
type ScanCache interface {
	// CacheScan stores a scan result. Returns false when the cache is
	// disabled or the write failed.
	CacheScan(repoPath, commit string, result map[string]interface{}) bool

	// GetCachedScan returns the cached result with cache_metadata attached,
	// or nil on disabled, miss, expiry, or error.
	GetCachedScan(repoPath, commit string) map[string]interface{}

	// IsCached reports whether a fresh entry exists for the pair.
	IsCached(repoPath, commit string) bool

	// GetCacheAge returns the entry age, or nil when absent.
	GetCacheAge(repoPath, commit string) *models.CacheAge

	// GetCacheMetadata returns the stored metadata, or nil when absent.
	GetCacheMetadata(repoPath, commit string) *models.CacheMetadata

	// InvalidateCache removes every entry for the repository path and
	// returns the number removed.
	InvalidateCache(repoPath string) int

	// ListCachedScans returns metadata for the most recent scans.
	ListCachedScans(limit int) []models.CacheMetadata

	// GetStats summarizes the cache.
	GetStats() models.CacheStats

	// ClearAll removes every entry.
	ClearAll() error

	// PruneExpired removes entries older than the TTL and returns the count.
	PruneExpired() int

	// TrimRecent drops the oldest entries beyond the recent-scans cap and
	// returns the count removed.
	TrimRecent() int
}

// CacheStore is the durable half of the scan cache. Operations surface
// errors; the cache service above it decides what failures mean.
type CacheStore interface {
	// PutEntry upserts an entry by key
	PutEntry(entry *models.CacheEntry) error

	// GetEntry returns an entry, or nil when absent
	GetEntry(key string) (*models.CacheEntry, error)

	// DeleteEntry removes one entry; absent keys are not an error
	DeleteEntry(key string) error

	// DeleteByRepositoryPath removes every entry for a repository path and
	// returns the number removed
	DeleteByRepositoryPath(repoPath string) (int, error)

	// ListEntries returns entries newest first
	ListEntries(limit int) ([]*models.CacheEntry, error)

	// CountEntries returns the number of stored entries
	CountEntries() (int, error)

	// DeleteOlderThan removes entries cached before the cutoff and returns
	// the number removed
	DeleteOlderThan(cutoff time.Time) (int, error)

	// ClearEntries removes every entry
	ClearEntries() error
}
