package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/events"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/worker"
)

// stubScanner answers every scan with a fixed result.
type stubScanner struct {
	result models.ScanResult
	err    error
}

func (s *stubScanner) Scan(ctx context.Context, repoPath string, opts interfaces.ScanOptions) (models.ScanResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return models.ScanResult{
		"scan_type":        "intra-project",
		"duplicate_groups": []interface{}{},
		"suggestions":      []interface{}{},
		"metrics":          map[string]interface{}{},
	}, nil
}

func (s *stubScanner) GetCacheStatus(ctx context.Context, repoPath string) interfaces.CacheStatus {
	return interfaces.CacheStatus{}
}

// newQueuedWorker builds a scan worker that is never started, so created jobs
// stay queued and handler assertions see stable snapshots.
func newQueuedWorker(t *testing.T) *worker.ScanWorker {
	t.Helper()

	w, err := worker.NewScanWorker(worker.Options{
		Scanner: &stubScanner{},
		Events:  events.NewService(arbor.NewLogger()),
		Logger:  arbor.NewLogger(),
	})
	require.NoError(t, err)
	return w
}

// doJSON runs one request through a handler func and records the response.
func doJSON(t *testing.T, h http.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

// doRaw is doJSON with a preassembled body, for malformed payload tests.
func doRaw(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
