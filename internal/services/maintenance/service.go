// -----------------------------------------------------------------------
// Maintenance Service - Scheduled cache sweeps and retry audits
// -----------------------------------------------------------------------

package maintenance

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/orchestrator"
)

// Default schedules, in six-field cron syntax.
const (
	defaultCacheSweep = "0 0 * * * *"    // Hourly
	defaultRetryAudit = "0 0 0 * * *"    // Daily at midnight
	defaultValueLogGC = "0 */30 * * * *" // Every 30 minutes
)

// Sweeper is the slice of the scan cache the maintenance jobs touch.
type Sweeper interface {
	PruneExpired() int
	TrimRecent() int
}

// RetrySource reports in-flight retry state for the audit log.
type RetrySource interface {
	GetRetryMetrics() orchestrator.RetryMetrics
}

// Compactor reclaims storage space. Badger's value log only shrinks when
// someone asks.
type Compactor interface {
	RunGC() (int, error)
}

// Service runs background upkeep on cron schedules: the hourly cache sweep
// (TTL prune plus recent-scans trim), the daily retry-table audit log, and
// the periodic value-log GC.
type Service struct {
	cron    *cron.Cron
	cache   Sweeper
	retries RetrySource
	gc      Compactor
	cfg     common.MaintenanceConfig
	logger  arbor.ILogger
}

// NewService creates the maintenance scheduler. Any dependency may be nil;
// its job is simply not scheduled.
func NewService(cache Sweeper, retries RetrySource, gc Compactor, cfg common.MaintenanceConfig, logger arbor.ILogger) *Service {
	return &Service{
		cron:    cron.New(cron.WithSeconds()),
		cache:   cache,
		retries: retries,
		gc:      gc,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start schedules the maintenance jobs and begins the cron loop.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		s.logger.Debug().Msg("Maintenance scheduler disabled")
		return nil
	}

	sweep := s.cfg.CacheSweep
	if sweep == "" {
		sweep = defaultCacheSweep
	}
	audit := s.cfg.RetryAudit
	if audit == "" {
		audit = defaultRetryAudit
	}
	gc := s.cfg.ValueLogGC
	if gc == "" {
		gc = defaultValueLogGC
	}

	// Cron invokes jobs on its own goroutines; a panicking sweep must not
	// take the whole server with it.
	if s.cache != nil {
		if _, err := s.cron.AddFunc(sweep, func() {
			common.SafeGo(s.logger, "cacheSweep", s.sweepCache)
		}); err != nil {
			return fmt.Errorf("failed to schedule cache sweep: %w", err)
		}
	}
	if s.retries != nil {
		if _, err := s.cron.AddFunc(audit, func() {
			common.SafeGo(s.logger, "retryAudit", s.auditRetries)
		}); err != nil {
			return fmt.Errorf("failed to schedule retry audit: %w", err)
		}
	}
	if s.gc != nil {
		if _, err := s.cron.AddFunc(gc, func() {
			common.SafeGo(s.logger, "valueLogGC", s.collectGarbage)
		}); err != nil {
			return fmt.Errorf("failed to schedule value log gc: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info().
		Str("cache_sweep", sweep).
		Str("retry_audit", audit).
		Str("value_log_gc", gc).
		Msg("Maintenance scheduler started")
	return nil
}

// Stop halts the cron loop. Jobs already running finish on their own.
func (s *Service) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Maintenance scheduler stopped")
}

// RunNow executes every maintenance job immediately, synchronously.
func (s *Service) RunNow() {
	if s.cache != nil {
		s.sweepCache()
	}
	if s.retries != nil {
		s.auditRetries()
	}
	if s.gc != nil {
		s.collectGarbage()
	}
}

// sweepCache removes expired entries and trims the recent list to its cap.
func (s *Service) sweepCache() {
	expired := s.cache.PruneExpired()
	trimmed := s.cache.TrimRecent()
	s.logger.Info().
		Int("expired", expired).
		Int("trimmed", trimmed).
		Msg("Cache sweep completed")
}

// auditRetries logs a snapshot of the retry table so slow retry storms show
// up in the daily logs even when nobody is watching the dashboard.
func (s *Service) auditRetries() {
	m := s.retries.GetRetryMetrics()
	s.logger.Info().
		Int("active_retries", m.ActiveRetries).
		Int("total_attempts", m.TotalRetryAttempts).
		Int("nearing_limit", m.RetryDistribution.NearingLimit).
		Str("jobs", strings.Join(m.JobsBeingRetried, ",")).
		Msg("Retry table audit")
}

// collectGarbage rewrites stale value-log files.
func (s *Service) collectGarbage() {
	rewritten, err := s.gc.RunGC()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Value log GC failed")
		return
	}
	s.logger.Info().
		Int("files_rewritten", rewritten).
		Msg("Value log GC completed")
}
