package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/models"
)

func TestGetStatusHandler(t *testing.T) {
	w := newQueuedWorker(t)
	cache := &fakeScanCache{stats: models.CacheStats{Enabled: true, TotalEntries: 2}}
	h := NewStatusHandler(w, cache, arbor.NewLogger())

	_, err := w.CreateJob("job-1", nil)
	require.NoError(t, err)

	rec := doJSON(t, h.GetStatusHandler, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "geminus", body["app"])
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["uptime"])
	assert.NotEmpty(t, body["timestamp"])

	orch := body["orchestrator"].(map[string]interface{})
	assert.EqualValues(t, 1, orch["total"])
	assert.EqualValues(t, 1, orch["queued"])

	retries := body["retries"].(map[string]interface{})
	assert.EqualValues(t, 0, retries["activeRetries"])

	scans := body["scans"].(map[string]interface{})
	assert.EqualValues(t, 0, scans["totalScans"])

	cacheStats := body["cache"].(map[string]interface{})
	assert.Equal(t, true, cacheStats["enabled"])
	assert.EqualValues(t, 2, cacheStats["total_entries"])
}

func TestGetStatusHandler_NoCache(t *testing.T) {
	h := NewStatusHandler(newQueuedWorker(t), nil, arbor.NewLogger())

	rec := doJSON(t, h.GetStatusHandler, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.NotContains(t, body, "cache")
	assert.Contains(t, body, "orchestrator")
}

func TestGetStatusHandler_MethodNotAllowed(t *testing.T) {
	h := NewStatusHandler(newQueuedWorker(t), nil, arbor.NewLogger())

	rec := doJSON(t, h.GetStatusHandler, http.MethodPost, "/api/status", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
