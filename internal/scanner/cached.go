// -----------------------------------------------------------------------
// Cached Scanner - Cache-vs-recompute decision in front of the detector
// -----------------------------------------------------------------------

package scanner

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// Service decides whether a scan request is served from the cache or handed
// to the detector, and populates the cache after a fresh run. The decision is
// deliberately conservative: anything that makes the cached result suspect
// (no git, dirty tree, explicit refresh) forces a recompute.
type Service struct {
	detector interfaces.PatternDetector
	tracker  interfaces.CommitTracker
	cache    interfaces.ScanCache
	cfg      common.CacheConfig
	logger   arbor.ILogger
}

// NewService composes the cache-aware scan surface.
func NewService(
	detector interfaces.PatternDetector,
	tracker interfaces.CommitTracker,
	cache interfaces.ScanCache,
	cfg common.CacheConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		detector: detector,
		tracker:  tracker,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
	}
}

// ShouldUseCache reports whether a cached result may answer this request.
// All of the following must hold: caching enabled (request override wins over
// config), a cache instance present, the path is a git repository, no refresh
// was forced, and the working tree is clean when uncommitted tracking is on.
func (s *Service) ShouldUseCache(repoPath string, status *models.RepositoryStatus, opts interfaces.ScanOptions) bool {
	if !s.cacheEnabled(opts) || s.cache == nil {
		return false
	}
	if status == nil || !status.IsGitRepository {
		return false
	}
	if opts.ForceRefresh || s.cfg.ForceRefresh {
		return false
	}
	if s.cfg.TrackUncommitted && status.HasUncommittedChanges {
		return false
	}
	return true
}

// Scan answers a scan request, from the cache when the repository state
// permits it, otherwise by running the detector and caching the fresh result.
func (s *Service) Scan(ctx context.Context, repoPath string, opts interfaces.ScanOptions) (models.ScanResult, error) {
	status := s.tracker.GetRepositoryStatus(ctx, repoPath)

	if s.ShouldUseCache(repoPath, status, opts) {
		if cached := s.cache.GetCachedScan(repoPath, status.CurrentCommit); cached != nil {
			s.logger.Info().
				Str("repository", repoPath).
				Str("commit", status.ShortCommit).
				Msg("Scan served from cache")
			return models.ScanResult(cached), nil
		}
	}

	result, err := s.detector.Detect(ctx, repoPath, opts)
	if err != nil {
		return nil, err
	}

	if s.shouldCacheResult(status, opts) {
		s.cache.CacheScan(repoPath, status.CurrentCommit, result)
	}

	return result, nil
}

// GetCacheStatus composes repository state, entry presence, and entry age
// into the dashboard cache answer.
func (s *Service) GetCacheStatus(ctx context.Context, repoPath string) interfaces.CacheStatus {
	if !s.cfg.Enabled || s.cache == nil {
		return interfaces.CacheStatus{Reason: interfaces.CacheReasonDisabled}
	}

	status := s.tracker.GetRepositoryStatus(ctx, repoPath)
	if !status.IsGitRepository {
		return interfaces.CacheStatus{Reason: interfaces.CacheReasonNotGitRepository}
	}
	if s.cfg.TrackUncommitted && status.HasUncommittedChanges {
		return interfaces.CacheStatus{
			Reason: interfaces.CacheReasonUncommittedChanges,
			Commit: status.ShortCommit,
		}
	}
	if !s.cache.IsCached(repoPath, status.CurrentCommit) {
		return interfaces.CacheStatus{
			Reason: interfaces.CacheReasonMiss,
			Commit: status.ShortCommit,
		}
	}

	return interfaces.CacheStatus{
		Cached: true,
		Commit: status.ShortCommit,
		Age:    s.cache.GetCacheAge(repoPath, status.CurrentCommit),
	}
}

// shouldCacheResult gates the write path. A forced refresh still stores the
// fresh result; everything else that invalidates reads also invalidates
// writes.
func (s *Service) shouldCacheResult(status *models.RepositoryStatus, opts interfaces.ScanOptions) bool {
	if !s.cacheEnabled(opts) || s.cache == nil {
		return false
	}
	if status == nil || !status.IsGitRepository {
		return false
	}
	if s.cfg.TrackUncommitted && status.HasUncommittedChanges {
		return false
	}
	return true
}

// cacheEnabled resolves the per-request override against the config default.
func (s *Service) cacheEnabled(opts interfaces.ScanOptions) bool {
	if opts.CacheEnabled != nil {
		return *opts.CacheEnabled
	}
	return s.cfg.Enabled
}

var _ interfaces.CachedScanner = (*Service)(nil)
