package interfaces

import (
	"context"

	"github.com/ternarybob/geminus/internal/models"
)

// ScanOptions are the per-request knobs accepted by the scan surface.
type ScanOptions struct {
	ForceRefresh bool
	IncludeTests bool
	CacheEnabled *bool
	MaxDepth     int
	ScanType     string
}

// PatternDetector invokes the external duplicate-detection pipeline and
// returns its normalized result envelope.
type PatternDetector interface {
	Detect(ctx context.Context, repoPath string, opts ScanOptions) (models.ScanResult, error)
}

// CacheStatus reports whether a repository's current state is cached and, if
// not, why.
type CacheStatus struct {
	Cached bool             `json:"cached"`
	Reason string           `json:"reason,omitempty"`
	Commit string           `json:"commit,omitempty"`
	Age    *models.CacheAge `json:"age,omitempty"`
}

// Cache-miss reasons reported by GetCacheStatus.
const (
	CacheReasonNotGitRepository   = "not_a_git_repository"
	CacheReasonDisabled           = "disabled"
	CacheReasonUncommittedChanges = "uncommitted_changes"
	CacheReasonMiss               = "miss"
)

// CachedScanner decides cache-vs-recompute for a scan and populates the cache
// on miss.
type CachedScanner interface {
	Scan(ctx context.Context, repoPath string, opts ScanOptions) (models.ScanResult, error)
	GetCacheStatus(ctx context.Context, repoPath string) CacheStatus
}
