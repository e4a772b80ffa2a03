// -----------------------------------------------------------------------
// Retry - Transient failures re-enqueue under derived ids after a delay
// -----------------------------------------------------------------------

package orchestrator

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/ternarybob/geminus/internal/models"
)

// retryIDSuffix matches the derived-id tail appended on each retry, so
// "job-42-retry1-retry2" and "job-42" resolve to the same original id.
var retryIDSuffix = regexp.MustCompile(`(-retry\d+)+$`)

// OriginalJobID strips any retry suffixes from a job id.
func OriginalJobID(id string) string {
	return retryIDSuffix.ReplaceAllString(id, "")
}

// RetryEntry tracks retry state for one original job id. A job and all of
// its retries share the single entry keyed by the original id.
type RetryEntry struct {
	JobID       string
	Attempts    int // Handler runs so far, including the first
	MaxAttempts int // Max handler runs before the entry is exhausted
	LastAttempt time.Time
	Delay       time.Duration
}

// NearingLimit reports whether one more failure exhausts the entry.
func (e *RetryEntry) NearingLimit() bool {
	return e.Attempts >= e.MaxAttempts-1
}

// RetryDistribution buckets tracked retry entries by attempt count.
type RetryDistribution struct {
	Attempt1     int `json:"attempt1"`
	Attempt2     int `json:"attempt2"`
	Attempt3Plus int `json:"attempt3Plus"`
	NearingLimit int `json:"nearingLimit"`
}

// RetryMetrics summarizes in-flight retry state for the status surface.
type RetryMetrics struct {
	ActiveRetries      int               `json:"activeRetries"`
	TotalRetryAttempts int               `json:"totalRetryAttempts"`
	JobsBeingRetried   []string          `json:"jobsBeingRetried"`
	RetryDistribution  RetryDistribution `json:"retryDistribution"`
}

// GetRetryMetrics returns a snapshot of every tracked retry entry.
func (s *Server) GetRetryMetrics() RetryMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := RetryMetrics{JobsBeingRetried: make([]string, 0, len(s.retries))}
	for id, entry := range s.retries {
		m.ActiveRetries++
		m.TotalRetryAttempts += entry.Attempts
		m.JobsBeingRetried = append(m.JobsBeingRetried, id)
		switch {
		case entry.Attempts <= 1:
			m.RetryDistribution.Attempt1++
		case entry.Attempts == 2:
			m.RetryDistribution.Attempt2++
		default:
			m.RetryDistribution.Attempt3Plus++
		}
		if entry.NearingLimit() {
			m.RetryDistribution.NearingLimit++
		}
	}
	sort.Strings(m.JobsBeingRetried)
	return m
}

// consultRetryLocked decides whether a failed job earns another run.
// Cancellations and non-retriable codes clear any tracked state; retriable
// failures advance the entry and schedule a re-enqueue under a derived id,
// until the attempt count reaches the max and the entry is dropped.
func (s *Server) consultRetryLocked(job *models.Job, jobErr *models.JobError) {
	origID := OriginalJobID(job.ID)

	if jobErr.Cancelled || !s.retriable[jobErr.Code] {
		s.clearRetryLocked(origID)
		return
	}

	entry, ok := s.retries[origID]
	if !ok {
		entry = &RetryEntry{
			JobID:       origID,
			MaxAttempts: s.opts.RetryAttempts,
			Delay:       s.opts.RetryDelay,
		}
		s.retries[origID] = entry
	}
	entry.Attempts++
	entry.LastAttempt = time.Now().UTC()

	if entry.Attempts >= entry.MaxAttempts {
		delete(s.retries, origID)
		s.logger.Warn().
			Str("job_id", origID).
			Int("attempts", entry.Attempts).
			Str("code", jobErr.Code).
			Msg("Retry attempts exhausted")
		return
	}

	retryID := fmt.Sprintf("%s-retry%d", origID, entry.Attempts)
	data := job.Clone().Data

	s.logger.Info().
		Str("job_id", job.ID).
		Str("retry_id", retryID).
		Int("attempt", entry.Attempts).
		Int("max_attempts", entry.MaxAttempts).
		Dur("delay", entry.Delay).
		Msg("Retry scheduled")

	s.retryTimers[retryID] = time.AfterFunc(entry.Delay, func() {
		s.enqueueRetry(retryID, data)
	})
}

// enqueueRetry fires when a retry timer elapses. The entry may have been
// cleared by a cancel in the meantime; in that case the retry is dropped.
func (s *Server) enqueueRetry(retryID string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.retryTimers, retryID)

	if !s.running {
		return
	}
	if _, tracked := s.retries[OriginalJobID(retryID)]; !tracked {
		return
	}

	if _, err := s.createJobLocked(retryID, data); err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", retryID).
			Msg("Failed to enqueue retry")
	}
}

// clearRetryLocked drops the retry entry and any pending timers that resolve
// to the same original id.
func (s *Server) clearRetryLocked(origID string) {
	delete(s.retries, origID)
	for id, timer := range s.retryTimers {
		if OriginalJobID(id) == origID {
			timer.Stop()
			delete(s.retryTimers, id)
		}
	}
}

// cancelPendingRetryLocked clears retry state for a chain with no live job:
// the original already terminal, the next retry still waiting on its timer.
// Returns true when anything was cleared.
func (s *Server) cancelPendingRetryLocked(origID string) bool {
	_, tracked := s.retries[origID]
	if !tracked {
		pending := false
		for id := range s.retryTimers {
			if OriginalJobID(id) == origID {
				pending = true
				break
			}
		}
		if !pending {
			return false
		}
	}
	s.clearRetryLocked(origID)
	return true
}
