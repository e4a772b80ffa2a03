// -----------------------------------------------------------------------
// Log Streamer - Mirrors server log records onto the hub's logs channel
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/geminus/internal/common"
)

// Buffer size for log batches queued between arbor and the consumer.
const logStreamBufferSize = 10

// defaultLogExcludePatterns drops the hub's own chatter from the stream so a
// failing client write cannot feed its warning back into the broadcast.
var defaultLogExcludePatterns = []string{
	"WebSocket client connected",
	"WebSocket client disconnected",
	"Failed to write to WebSocket client",
	"HTTP request",
	"HTTP response",
}

// LogStreamer consumes log batches from arbor's context channel and mirrors
// them onto the hub's "logs" broadcast channel, filtered by level and by
// message pattern. Consumption runs on its own goroutine so a slow client
// never blocks the logging path.
type LogStreamer struct {
	hub             *WebSocketHandler
	logger          arbor.ILogger
	channel         chan []arbormodels.LogEvent
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	minLevel        levels.LogLevel
	excludePatterns []string
}

// NewLogStreamer creates the log streamer. Register its channel on the root
// logger with SetChannel to start receiving records.
func NewLogStreamer(hub *WebSocketHandler, wsConfig *common.WebSocketConfig, logger arbor.ILogger) *LogStreamer {
	minLevel := levels.WarnLevel
	excludePatterns := defaultLogExcludePatterns

	if wsConfig != nil {
		if wsConfig.MinLevel != "" {
			minLevel = parseLogLevel(wsConfig.MinLevel)
		}
		if len(wsConfig.ExcludePatterns) > 0 {
			excludePatterns = wsConfig.ExcludePatterns
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LogStreamer{
		hub:             hub,
		logger:          logger,
		channel:         make(chan []arbormodels.LogEvent, logStreamBufferSize),
		ctx:             ctx,
		cancel:          cancel,
		minLevel:        minLevel,
		excludePatterns: excludePatterns,
	}
}

// GetChannel returns the channel for arbor to send log batches to.
func (s *LogStreamer) GetChannel() chan []arbormodels.LogEvent {
	return s.channel
}

// Start launches the consumer goroutine.
func (s *LogStreamer) Start() error {
	s.wg.Add(1)
	go s.consume()
	return nil
}

// Stop gracefully shuts down the consumer.
func (s *LogStreamer) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// consume processes log batches and broadcasts the ones that pass the
// level and pattern filters.
func (s *LogStreamer) consume() {
	defer s.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log streamer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-s.channel:
			if !ok {
				return
			}
			for _, event := range batch {
				s.broadcast(event)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// broadcast sends one log record to the hub if it passes the filters.
func (s *LogStreamer) broadcast(event arbormodels.LogEvent) {
	arborLevel := plogToArborLevel(event.Level)

	if arborLevel < s.minLevel {
		return
	}

	for _, pattern := range s.excludePatterns {
		if strings.Contains(event.Message, pattern) {
			return
		}
	}

	s.hub.Broadcast(ActivityMessage{
		Channel:   "logs",
		Type:      "log",
		Timestamp: event.Timestamp,
		Data: map[string]interface{}{
			"level":   levelName(arborLevel),
			"message": event.Message,
			"time":    event.Timestamp.Format("15:04:05"),
		},
	})
}

// plogToArborLevel converts phuslu/log.Level to arbor levels.LogLevel
func plogToArborLevel(level plog.Level) levels.LogLevel {
	switch level {
	case plog.ErrorLevel:
		return levels.ErrorLevel
	case plog.WarnLevel:
		return levels.WarnLevel
	case plog.InfoLevel:
		return levels.InfoLevel
	case plog.DebugLevel:
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// parseLogLevel converts a config log level string to arbor levels.LogLevel
func parseLogLevel(level string) levels.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return levels.ErrorLevel
	case "warn", "warning":
		return levels.WarnLevel
	case "info":
		return levels.InfoLevel
	case "debug":
		return levels.DebugLevel
	default:
		return levels.WarnLevel
	}
}

// levelName maps arbor log levels to the strings the dashboard renders
func levelName(level levels.LogLevel) string {
	switch level {
	case levels.ErrorLevel:
		return "error"
	case levels.WarnLevel:
		return "warn"
	case levels.InfoLevel:
		return "info"
	case levels.DebugLevel:
		return "debug"
	default:
		return "info"
	}
}
