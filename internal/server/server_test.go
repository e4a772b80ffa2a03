package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/app"
	"github.com/ternarybob/geminus/internal/common"
)

// newTestServer boots the full application against throwaway storage and
// serves the real route table plus middleware chain over httptest. The
// concurrency cap is zero so queued jobs hold still for assertions.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(t.TempDir(), "db")
	cfg.Reports.OutputDir = t.TempDir()
	cfg.Orchestrator.MaxConcurrent = 0
	cfg.Maintenance.Enabled = false
	cfg.Git.DryRun = true

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := New(application)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, ts *httptest.Server, path string) (int, map[string]interface{}) {
	t.Helper()

	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeResponse(t, resp)
}

func postJSON(t *testing.T, ts *httptest.Server, path, payload string) (int, map[string]interface{}) {
	t.Helper()

	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeResponse(t, resp)
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoErrorf(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

func TestServer_CoreRoutes(t *testing.T) {
	ts := newTestServer(t)

	code, body := getJSON(t, ts, "/api/health")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = getJSON(t, ts, "/api/version")
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["version"])
	assert.Contains(t, body, "build")
	assert.Contains(t, body, "git_commit")

	code, body = getJSON(t, ts, "/api/no-such-endpoint")
	require.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not Found", body["error"])
	assert.Equal(t, "/api/no-such-endpoint", body["path"])

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/jobs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body = decodeResponse(t, resp)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "Method Not Allowed", body["error"])

	code, body = getJSON(t, ts, "/api/cache/stats")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["enabled"])

	code, body = getJSON(t, ts, "/api/reports")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["count"])

	code, body = getJSON(t, ts, "/api/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "geminus", body["app"])
	assert.Contains(t, body, "orchestrator")
	assert.Contains(t, body, "scans")
	assert.Contains(t, body, "cache")
}

func TestServer_ScanJobLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// Validation failures never reach the worker.
	code, body := postJSON(t, ts, "/api/scan", `{}`)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Validation Failed", body["error"])
	assert.NotEmpty(t, body["errors"])

	code, created := postJSON(t, ts, "/api/scan", `{"repositoryPath": "/tmp/repo-a"}`)
	require.Equal(t, http.StatusCreated, code)
	jobID, _ := created["id"].(string)
	require.True(t, strings.HasPrefix(jobID, "scan_"), "id %q", jobID)
	assert.Equal(t, "queued", created["status"])
	assert.Equal(t, "duplicate-detection", created["pipelineId"])

	code, listing := getJSON(t, ts, "/api/jobs")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, listing["totalCount"])

	code, fetched := getJSON(t, ts, "/api/jobs/"+jobID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, jobID, fetched["id"])

	code, result := postJSON(t, ts, "/api/jobs/"+jobID+"/pause", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, result["success"])

	code, result = postJSON(t, ts, "/api/jobs/"+jobID+"/resume", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, result["success"])

	code, result = postJSON(t, ts, "/api/jobs/"+jobID+"/cancel", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, result["success"])

	code, fetched = getJSON(t, ts, "/api/jobs/"+jobID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", fetched["status"])

	// The persisted job surfaces through the pipeline listings too.
	code, pipelines := getJSON(t, ts, "/api/pipelines")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, pipelines["pipelines"], "duplicate-detection")

	code, jobs := getJSON(t, ts, "/api/pipelines/duplicate-detection/jobs")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, jobs["count"])
}

func TestServer_MetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	code, _ := postJSON(t, ts, "/api/scan", `{"repositoryPath": "/tmp/repo-b"}`)
	require.Equal(t, http.StatusCreated, code)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "geminus_jobs_created_total 1")
	assert.Contains(t, text, "geminus_jobs_queued 1")
	assert.Contains(t, text, "geminus_scan_cache_hits_total")
}

// The hub upgrade must survive the logging wrapper, so this dials through the
// full middleware chain rather than the handler directly.
func TestServer_WebSocketThroughMiddleware(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &msg))
	assert.Equal(t, "system", msg["channel"])
	assert.Equal(t, "connected", msg["type"])
}
