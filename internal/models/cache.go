// -----------------------------------------------------------------------
// Cache Entry - Content-addressed scan result storage
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"time"
)

// CacheMetadata describes a cached scan for inspection and listing.
type CacheMetadata struct {
	CachedAt         time.Time `json:"cached_at"`
	RepositoryPath   string    `json:"repository_path"`
	ScanType         string    `json:"scan_type"`
	TotalDuplicates  int       `json:"total_duplicates"`
	TotalSuggestions int       `json:"total_suggestions"`
}

// CacheEntry is one stored scan result, keyed by (repository path, short
// commit). RepositoryPath is indexed so invalidation can delete every entry
// for a path regardless of commit.
type CacheEntry struct {
	Key            string          `badgerhold:"key" json:"key"`
	RepositoryPath string          `badgerhold:"index" json:"repository_path"`
	ShortCommit    string          `json:"short_commit"`
	ScanResult     json.RawMessage `json:"scan_result"`
	Metadata       CacheMetadata   `json:"metadata"`
	CachedAt       time.Time       `json:"cached_at"`
}

// Expired reports whether the entry is older than the given TTL.
func (e *CacheEntry) Expired(ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return time.Since(e.CachedAt) > ttl
}

// CacheAge is the age of a cached scan in the units callers display.
type CacheAge struct {
	CachedAt time.Time `json:"cached_at"`
	Hours    float64   `json:"age_hours"`
	Days     float64   `json:"age_days"`
}

// CacheStats summarizes the cache for the status endpoint.
type CacheStats struct {
	Enabled      bool   `json:"enabled"`
	TotalEntries int    `json:"total_entries"`
	TTLDays      int    `json:"ttl_days"`
	KeyPrefix    string `json:"key_prefix"`
}

// RepositoryStatus is a point-in-time snapshot of a git workspace produced by
// the commit tracker. Non-git paths yield the zero value with ScannedAt set.
type RepositoryStatus struct {
	IsGitRepository       bool      `json:"is_git_repository"`
	CurrentCommit         string    `json:"current_commit,omitempty"`
	ShortCommit           string    `json:"short_commit,omitempty"`
	Branch                string    `json:"branch,omitempty"`
	HasUncommittedChanges bool      `json:"has_uncommitted_changes"`
	RemoteURL             string    `json:"remote_url,omitempty"`
	ScannedAt             time.Time `json:"scanned_at"`
}

// CommitMetadata describes a single commit.
type CommitMetadata struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"short_hash"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Date      time.Time `json:"date"`
	Message   string    `json:"message"`
}
