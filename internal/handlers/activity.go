// -----------------------------------------------------------------------
// Activity Broadcaster - Mirrors job lifecycle events onto the hub
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/orchestrator"
)

// ActivityBroadcaster subscribes to the job lifecycle channels and mirrors
// every event onto the hub's "activity" and "jobs" broadcast channels.
// Subscription is synchronous, so clients see events in emission order.
type ActivityBroadcaster struct {
	hub    *WebSocketHandler
	logger arbor.ILogger
}

// NewActivityBroadcaster wires the broadcaster into the event bus. Register
// it before the job server starts so no transition is missed.
func NewActivityBroadcaster(hub *WebSocketHandler, events interfaces.EventService, logger arbor.ILogger) (*ActivityBroadcaster, error) {
	b := &ActivityBroadcaster{hub: hub, logger: logger}

	for _, eventType := range interfaces.JobEventTypes {
		if err := events.Subscribe(eventType, b.onJobEvent); err != nil {
			return nil, err
		}
	}
	if err := events.Subscribe(interfaces.EventMetricsUpdated, b.onStats); err != nil {
		return nil, err
	}

	logger.Info().Msg("Activity broadcaster registered for job lifecycle events")
	return b, nil
}

// onJobEvent translates one lifecycle event into a broadcast frame and sends
// it on both channels.
func (b *ActivityBroadcaster) onJobEvent(ctx context.Context, event interfaces.Event) error {
	job, ok := event.Payload.(*models.Job)
	if !ok {
		b.logger.Warn().Str("event", string(event.Type)).Msg("Job event carried unexpected payload")
		return nil
	}

	msg := ActivityMessage{
		Type:       string(event.Type),
		JobID:      job.ID,
		PipelineID: job.PipelineID,
		Status:     string(job.Status),
		Timestamp:  time.Now().UTC(),
		Data:       frameData(event.Type, job),
	}

	msg.Channel = "activity"
	b.hub.Broadcast(msg)
	msg.Channel = "jobs"
	b.hub.Broadcast(msg)
	return nil
}

// onStats forwards throttled orchestrator stats to the dashboard.
func (b *ActivityBroadcaster) onStats(ctx context.Context, event interfaces.Event) error {
	stats, ok := event.Payload.(orchestrator.Stats)
	if !ok {
		return nil
	}

	b.hub.Broadcast(ActivityMessage{
		Channel:   "metrics",
		Type:      string(interfaces.EventMetricsUpdated),
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"total":         stats.Total,
			"queued":        stats.Queued,
			"running":       stats.Running,
			"completed":     stats.Completed,
			"failed":        stats.Failed,
			"activeCount":   stats.ActiveCount,
			"queueLength":   stats.QueueLength,
			"maxConcurrent": stats.MaxConcurrent,
		},
	})
	return nil
}

// frameData attaches the details a dashboard needs beyond the status itself.
func frameData(eventType interfaces.EventType, job *models.Job) map[string]interface{} {
	data := map[string]interface{}{"jobType": job.JobType}

	if eventType == interfaces.EventJobFailed && job.Error != nil {
		data["error"] = job.Error.Message
		if job.Error.Code != "" {
			data["errorCode"] = job.Error.Code
		}
	}
	if eventType == interfaces.EventJobCompleted && job.JobType == "scan" && job.Result != nil {
		result := models.ScanResult(job.Result)
		data["fromCache"] = result.FromCache()
		data["duplicateGroups"] = result.TotalGroups()
		data["highImpact"] = result.HighImpactCount()
	}
	if job.Git != nil && job.Git.PrUrl != "" {
		data["prUrl"] = job.Git.PrUrl
	}
	return data
}
