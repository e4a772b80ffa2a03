// -----------------------------------------------------------------------
// Scan Cache - Content-addressed scan results keyed by (path, commit)
// -----------------------------------------------------------------------

package scancache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// Service implements the scan cache policy: key composition, TTL, and the
// swallow-all-storage-errors rule. Cache trouble must never change what a
// scan returns, only whether it was recomputed.
type Service struct {
	store  interfaces.CacheStore
	cfg    common.CacheConfig
	logger arbor.ILogger
	ttl    time.Duration
}

// NewService creates a scan cache on top of a cache store.
func NewService(store interfaces.CacheStore, cfg common.CacheConfig, logger arbor.ILogger) *Service {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dedup_scan"
	}
	if cfg.TTLDays <= 0 {
		cfg.TTLDays = 30
	}
	if cfg.RecentScansLimit <= 0 {
		cfg.RecentScansLimit = 100
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger,
		ttl:    time.Duration(cfg.TTLDays) * 24 * time.Hour,
	}
}

// CacheKey builds <prefix>:<path-id>:<short-commit>. The path hashes to a
// fixed-width id so arbitrary filesystem paths never leak into the keyspace.
func (s *Service) CacheKey(repoPath, commit string) string {
	sum := sha256.Sum256([]byte(repoPath))
	pathID := hex.EncodeToString(sum[:])[:12]
	return fmt.Sprintf("%s:%s:%s", s.cfg.KeyPrefix, pathID, shortCommit(commit))
}

// shortCommit truncates a commit to 7 chars, with a sentinel for non-repos.
func shortCommit(commit string) string {
	if commit == "" {
		return "no-git"
	}
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

// CacheScan stores a scan result. Returns false when the cache is disabled
// or the write failed.
func (s *Service) CacheScan(repoPath, commit string, result map[string]interface{}) bool {
	if !s.cfg.Enabled {
		return false
	}

	raw, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn().Err(err).Str("repository", repoPath).Msg("Failed to serialize scan result for cache")
		return false
	}

	scan := models.ScanResult(result)
	now := time.Now().UTC()
	entry := &models.CacheEntry{
		Key:            s.CacheKey(repoPath, commit),
		RepositoryPath: repoPath,
		ShortCommit:    shortCommit(commit),
		ScanResult:     raw,
		Metadata: models.CacheMetadata{
			CachedAt:         now,
			RepositoryPath:   repoPath,
			ScanType:         scan.ScanType(),
			TotalDuplicates:  scan.TotalGroups(),
			TotalSuggestions: scan.TotalSuggestions(),
		},
		CachedAt: now,
	}

	if err := s.store.PutEntry(entry); err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("Failed to store scan in cache")
		return false
	}

	s.logger.Debug().
		Str("key", entry.Key).
		Str("scan_type", entry.Metadata.ScanType).
		Int("duplicates", entry.Metadata.TotalDuplicates).
		Msg("Scan result cached")
	return true
}

// GetCachedScan returns the cached result with cache_metadata attached, or
// nil on disabled, miss, expiry, or error.
func (s *Service) GetCachedScan(repoPath, commit string) map[string]interface{} {
	if !s.cfg.Enabled {
		return nil
	}

	entry := s.freshEntry(repoPath, commit)
	if entry == nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(entry.ScanResult, &result); err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("Corrupt cache entry; treating as miss")
		return nil
	}

	age := time.Since(entry.CachedAt)
	result["cache_metadata"] = map[string]interface{}{
		"from_cache": true,
		"cached_at":  entry.CachedAt.Format(time.RFC3339),
		"age":        humanizeAge(age),
		"age_hours":  age.Hours(),
		"age_days":   age.Hours() / 24,
	}
	return result
}

// IsCached reports whether a fresh entry exists for the pair.
func (s *Service) IsCached(repoPath, commit string) bool {
	if !s.cfg.Enabled {
		return false
	}
	return s.freshEntry(repoPath, commit) != nil
}

// GetCacheAge returns the entry age, or nil when absent.
func (s *Service) GetCacheAge(repoPath, commit string) *models.CacheAge {
	entry := s.freshEntry(repoPath, commit)
	if entry == nil {
		return nil
	}
	age := time.Since(entry.CachedAt)
	return &models.CacheAge{
		CachedAt: entry.CachedAt,
		Hours:    age.Hours(),
		Days:     age.Hours() / 24,
	}
}

// GetCacheMetadata returns the stored metadata, or nil when absent.
func (s *Service) GetCacheMetadata(repoPath, commit string) *models.CacheMetadata {
	entry := s.freshEntry(repoPath, commit)
	if entry == nil {
		return nil
	}
	meta := entry.Metadata
	return &meta
}

// InvalidateCache removes every entry for the repository path and returns
// the number removed.
func (s *Service) InvalidateCache(repoPath string) int {
	count, err := s.store.DeleteByRepositoryPath(repoPath)
	if err != nil {
		s.logger.Warn().Err(err).Str("repository", repoPath).Msg("Cache invalidation incomplete")
	}
	if count > 0 {
		s.logger.Info().Str("repository", repoPath).Int("removed", count).Msg("Cache invalidated")
	}
	return count
}

// ListCachedScans returns metadata for the most recent scans, newest first.
func (s *Service) ListCachedScans(limit int) []models.CacheMetadata {
	if limit <= 0 || limit > s.cfg.RecentScansLimit {
		limit = s.cfg.RecentScansLimit
	}

	entries, err := s.store.ListEntries(limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list cached scans")
		return nil
	}

	out := make([]models.CacheMetadata, 0, len(entries))
	for _, entry := range entries {
		if entry.Expired(s.ttl) {
			continue
		}
		out = append(out, entry.Metadata)
	}
	return out
}

// GetStats summarizes the cache.
func (s *Service) GetStats() models.CacheStats {
	total, err := s.store.CountEntries()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count cache entries")
	}
	return models.CacheStats{
		Enabled:      s.cfg.Enabled,
		TotalEntries: total,
		TTLDays:      s.cfg.TTLDays,
		KeyPrefix:    s.cfg.KeyPrefix,
	}
}

// ClearAll removes every entry.
func (s *Service) ClearAll() error {
	if err := s.store.ClearEntries(); err != nil {
		return err
	}
	s.logger.Info().Msg("Scan cache cleared")
	return nil
}

// PruneExpired removes entries older than the TTL and returns the count.
func (s *Service) PruneExpired() int {
	cutoff := time.Now().UTC().Add(-s.ttl)
	count, err := s.store.DeleteOlderThan(cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache TTL sweep incomplete")
	}
	if count > 0 {
		s.logger.Info().Int("removed", count).Msg("Expired cache entries pruned")
	}
	return count
}

// TrimRecent drops the oldest entries beyond the recent-scans cap and
// returns the count removed.
func (s *Service) TrimRecent() int {
	entries, err := s.store.ListEntries(0)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Recent-scans trim skipped")
		return 0
	}
	if len(entries) <= s.cfg.RecentScansLimit {
		return 0
	}

	removed := 0
	for _, entry := range entries[s.cfg.RecentScansLimit:] {
		if err := s.store.DeleteEntry(entry.Key); err != nil {
			s.logger.Debug().Err(err).Str("key", entry.Key).Msg("Failed to drop trimmed cache entry")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Recent-scans list trimmed")
	}
	return removed
}

// freshEntry reads an entry and applies the TTL, lazily deleting expired
// records so listings stay clean. Storage errors read as a miss.
func (s *Service) freshEntry(repoPath, commit string) *models.CacheEntry {
	entry, err := s.store.GetEntry(s.CacheKey(repoPath, commit))
	if err != nil {
		s.logger.Warn().Err(err).Str("repository", repoPath).Msg("Cache read failed; treating as miss")
		return nil
	}
	if entry == nil {
		return nil
	}
	if entry.Expired(s.ttl) {
		if err := s.store.DeleteEntry(entry.Key); err != nil {
			s.logger.Debug().Err(err).Str("key", entry.Key).Msg("Failed to drop expired cache entry")
		}
		return nil
	}
	return entry
}

// humanizeAge renders a coarse age for dashboard display.
func humanizeAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

var _ interfaces.ScanCache = (*Service)(nil)
