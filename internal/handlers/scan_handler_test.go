package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestScanHandler_QueuesJob(t *testing.T) {
	w := newQueuedWorker(t)
	h := NewScanHandler(w, arbor.NewLogger())

	rec := doJSON(t, h.ScanHandler, http.MethodPost, "/api/scan", map[string]interface{}{
		"jobId":          "scan-abc",
		"repositoryPath": "/repo",
		"scanType":       "inter-project",
		"options": map[string]interface{}{
			"forceRefresh": true,
			"includeTests": false,
			"maxDepth":     4,
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "scan-abc", body["id"])
	assert.Equal(t, "queued", body["status"])

	job := w.GetJob("scan-abc")
	require.NotNil(t, job)
	assert.Equal(t, "/repo", job.Data["repositoryPath"])
	assert.Equal(t, "inter-project", job.Data["scanType"])
	assert.Equal(t, true, job.Data["forceRefresh"])
	assert.Equal(t, false, job.Data["includeTests"])
	assert.EqualValues(t, 4, job.Data["maxDepth"])
	assert.NotContains(t, job.Data, "cacheEnabled")
}

func TestScanHandler_GeneratesScanIDWhenAbsent(t *testing.T) {
	w := newQueuedWorker(t)
	h := NewScanHandler(w, arbor.NewLogger())

	rec := doJSON(t, h.ScanHandler, http.MethodPost, "/api/scan", map[string]interface{}{
		"repositoryPath": "/repo",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	id, ok := body["id"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(id, "scan_"), "generated id %q should carry the scan_ prefix", id)
	assert.NotNil(t, w.GetJob(id))
}

func TestScanHandler_MissingRepositoryPath(t *testing.T) {
	h := NewScanHandler(newQueuedWorker(t), arbor.NewLogger())

	rec := doJSON(t, h.ScanHandler, http.MethodPost, "/api/scan", map[string]interface{}{
		"scanType": "intra-project",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Validation Failed", body["error"])
	assert.EqualValues(t, http.StatusBadRequest, body["status"])
	assert.NotEmpty(t, body["timestamp"])

	errs, ok := body["errors"].([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]interface{})
	assert.Equal(t, "repositoryPath", first["field"])
	assert.Equal(t, "required", first["code"])
}

func TestScanHandler_RejectsUnknownFields(t *testing.T) {
	h := NewScanHandler(newQueuedWorker(t), arbor.NewLogger())

	rec := doRaw(h.ScanHandler, http.MethodPost, "/api/scan",
		`{"repositoryPath":"/repo","rm":"-rf"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown field")
}

func TestScanHandler_RejectsBadScanType(t *testing.T) {
	h := NewScanHandler(newQueuedWorker(t), arbor.NewLogger())

	rec := doJSON(t, h.ScanHandler, http.MethodPost, "/api/scan", map[string]interface{}{
		"repositoryPath": "/repo",
		"scanType":       "everything",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	errs := body["errors"].([]interface{})
	first := errs[0].(map[string]interface{})
	assert.Equal(t, "scanType", first["field"])
	assert.Equal(t, "oneof", first["code"])
}

func TestScanHandler_DuplicateJobID(t *testing.T) {
	w := newQueuedWorker(t)
	h := NewScanHandler(w, arbor.NewLogger())

	payload := map[string]interface{}{
		"jobId":          "scan-dup",
		"repositoryPath": "/repo",
	}

	first := doJSON(t, h.ScanHandler, http.MethodPost, "/api/scan", payload)
	require.Equal(t, http.StatusCreated, first.Code)

	second := doJSON(t, h.ScanHandler, http.MethodPost, "/api/scan", payload)
	require.Equal(t, http.StatusConflict, second.Code)

	body := decodeBody(t, second)
	assert.Equal(t, "Conflict", body["error"])
	assert.Contains(t, body["message"], "already exists")
}

func TestScanHandler_MethodNotAllowed(t *testing.T) {
	h := NewScanHandler(newQueuedWorker(t), arbor.NewLogger())

	rec := doJSON(t, h.ScanHandler, http.MethodGet, "/api/scan", nil)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method Not Allowed", decodeBody(t, rec)["error"])
}
