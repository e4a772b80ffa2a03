package events

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/interfaces"
)

// Service implements EventService with synchronous in-order delivery.
// Handlers registered before a Publish all run, in registration order, before
// Publish returns. A handler that errors or panics is logged and skipped;
// later handlers still run.
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	mu          sync.RWMutex
	closed      bool
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("event service is closed")
	}

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// Publish delivers the event synchronously to every handler registered before
// this call, in registration order. Late subscribers do not receive it.
func (s *Service) Publish(ctx context.Context, event interfaces.Event) {
	s.mu.RLock()
	handlers := make([]interfaces.EventHandler, len(s.subscribers[event.Type]))
	copy(handlers, s.subscribers[event.Type])
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for i, handler := range handlers {
		s.invoke(ctx, event, i, handler)
	}
}

// invoke runs one handler with panic containment. A listener failure must
// never interrupt the publisher.
func (s *Service) invoke(ctx context.Context, event interfaces.Event, index int, handler interfaces.EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			s.logger.Warn().
				Str("event_type", string(event.Type)).
				Int("listener_index", index).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Event listener panicked")
		}
	}()

	if err := handler(ctx, event); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", string(event.Type)).
			Int("listener_index", index).
			Msg("Event listener failed")
	}
}

// Close shuts down the event service. Subsequent Subscribe calls fail;
// publishes to the closed service deliver to the handlers registered before
// the close.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.logger.Debug().Msg("Event service closed")
	return nil
}

var _ interfaces.EventService = (*Service)(nil)
