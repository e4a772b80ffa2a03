// -----------------------------------------------------------------------
// Stats - Aggregate counts published on the metrics:updated channel
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"time"

	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// statsPublishInterval throttles metrics:updated emission. Terminal
// transitions inside a burst still land in the next publish because counts
// are recomputed from the job map, not accumulated.
const statsPublishInterval = 500 * time.Millisecond

// Stats is the aggregate view of every job known to a server.
type Stats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Paused    int `json:"paused"`
	Cancelled int `json:"cancelled"`

	ActiveCount   int `json:"activeCount"`
	QueueLength   int `json:"queueLength"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// GetStats returns current aggregate counts.
func (s *Server) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Server) statsLocked() Stats {
	stats := Stats{
		Total:         len(s.jobs),
		ActiveCount:   s.active,
		QueueLength:   len(s.queue),
		MaxConcurrent: s.maxConcurrent,
	}
	for _, job := range s.jobs {
		switch job.Status {
		case models.JobStatusQueued:
			stats.Queued++
		case models.JobStatusRunning:
			stats.Running++
		case models.JobStatusCompleted:
			stats.Completed++
		case models.JobStatusFailed:
			stats.Failed++
		case models.JobStatusPaused:
			stats.Paused++
		case models.JobStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// publishStatsLocked emits a metrics:updated event, at most once per
// interval. Callers hold mu.
func (s *Server) publishStatsLocked() {
	now := time.Now()
	if now.Sub(s.lastStatsPublish) < statsPublishInterval {
		return
	}
	s.lastStatsPublish = now

	s.events.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventMetricsUpdated,
		Payload: s.statsLocked(),
	})
}
