// -----------------------------------------------------------------------
// Cache Handler - Scan cache stats, listing, and invalidation endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/validation"
)

const defaultCachedScansLimit = 20

// CacheHandler exposes the scan cache for dashboard reads and operator
// maintenance.
type CacheHandler struct {
	cache  interfaces.ScanCache
	logger arbor.ILogger
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(cache interfaces.ScanCache, logger arbor.ILogger) *CacheHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &CacheHandler{cache: cache, logger: logger}
}

// CacheStatsHandler handles GET /api/cache/stats
func (h *CacheHandler) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, h.cache.GetStats())
}

// ListCachedScansHandler returns metadata for the most recent cached scans.
// GET /api/cache/scans?limit=20
func (h *CacheHandler) ListCachedScansHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := validation.SanitizeLimit(r.URL.Query().Get("limit"), defaultCachedScansLimit, interfaces.MaxJobQueryLimit)

	scans := h.cache.ListCachedScans(limit)
	if scans == nil {
		scans = []models.CacheMetadata{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scans": scans,
		"count": len(scans),
	})
}

// InvalidateCacheHandler removes every cached scan for one repository.
// POST /api/cache/invalidate {"repositoryPath": "/path/to/repo"}
func (h *CacheHandler) InvalidateCacheHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		RepositoryPath string `json:"repositoryPath"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if req.RepositoryPath == "" {
		WriteError(w, http.StatusBadRequest, "Bad Request", "repositoryPath is required")
		return
	}

	removed := h.cache.InvalidateCache(req.RepositoryPath)

	h.logger.Info().
		Str("repository_path", req.RepositoryPath).
		Int("removed", removed).
		Msg("Cache invalidated via API")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"invalidated": removed,
	})
}

// ClearCacheHandler removes every cached scan.
// POST /api/cache/clear
func (h *CacheHandler) ClearCacheHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.cache.ClearAll(); err != nil {
		h.logger.Error().Err(err).Msg("Failed to clear scan cache")
		WriteError(w, http.StatusInternalServerError, "Internal Server Error", "failed to clear cache")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": true,
	})
}
