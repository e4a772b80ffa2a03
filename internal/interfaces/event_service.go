package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobCreated   EventType = "job:created"
	EventJobStarted   EventType = "job:started"
	EventJobCompleted EventType = "job:completed"
	EventJobFailed    EventType = "job:failed"
	EventJobCancelled EventType = "job:cancelled"
	EventJobPaused    EventType = "job:paused"
	EventJobResumed   EventType = "job:resumed"

	EventMetricsUpdated EventType = "metrics:updated"
)

// JobEventTypes lists every per-job lifecycle channel.
var JobEventTypes = []EventType{
	EventJobCreated,
	EventJobStarted,
	EventJobCompleted,
	EventJobFailed,
	EventJobCancelled,
	EventJobPaused,
	EventJobResumed,
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus. Delivery is synchronous: every
// handler registered before a Publish runs to completion, in registration
// order, before Publish returns. Handler panics and errors are contained and
// logged; they never reach the publisher.
type EventService interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish delivers an event to all subscribers in registration order
	Publish(ctx context.Context, event Event)

	// Close shuts down the event service
	Close() error
}
