// -----------------------------------------------------------------------
// Status Handler - Aggregated dashboard snapshot of the running server
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/worker"
)

// StatusHandler serves the aggregated status read the dashboard polls.
type StatusHandler struct {
	worker    *worker.ScanWorker
	cache     interfaces.ScanCache
	logger    arbor.ILogger
	startTime time.Time
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(w *worker.ScanWorker, cache interfaces.ScanCache, logger arbor.ILogger) *StatusHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &StatusHandler{
		worker:    w,
		cache:     cache,
		logger:    logger,
		startTime: time.Now().UTC(),
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status := map[string]interface{}{
		"app":          "geminus",
		"version":      common.GetVersion(),
		"uptime":       time.Since(h.startTime).Round(time.Second).String(),
		"orchestrator": h.worker.GetStats(),
		"retries":      h.worker.GetRetryMetrics(),
		"scans":        h.worker.Metrics(),
		"timestamp":    time.Now().UTC(),
	}
	if h.cache != nil {
		status["cache"] = h.cache.GetStats()
	}

	WriteJSON(w, http.StatusOK, status)
}
