package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/interfaces"
)

func TestImportJobsHandler_BareArray(t *testing.T) {
	store := &fakeJobStore{importResult: interfaces.BulkImportResult{Imported: 2, Errors: []string{}}}
	h := NewImportHandler(store, arbor.NewLogger())

	rec := doRaw(h.ImportJobsHandler, http.MethodPost, "/api/jobs/import",
		`[{"id":"a","pipeline_id":"p"},{"id":"b","pipelineId":"p"}]`)

	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["imported"])
	assert.EqualValues(t, 0, body["skipped"])

	require.Len(t, store.imported, 1)
	assert.Len(t, store.imported[0], 2)
}

func TestImportJobsHandler_Envelope(t *testing.T) {
	store := &fakeJobStore{importResult: interfaces.BulkImportResult{Imported: 1, Errors: []string{}}}
	h := NewImportHandler(store, arbor.NewLogger())

	rec := doRaw(h.ImportJobsHandler, http.MethodPost, "/api/jobs/import",
		`{"jobs":[{"id":"a"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.imported, 1)
	assert.Len(t, store.imported[0], 1)
}

func TestImportJobsHandler_BadBody(t *testing.T) {
	store := &fakeJobStore{}
	h := NewImportHandler(store, arbor.NewLogger())

	for _, body := range []string{`{"records":[]}`, `"jobs"`, `{`, ``} {
		rec := doRaw(h.ImportJobsHandler, http.MethodPost, "/api/jobs/import", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q should be rejected", body)
	}
	assert.Empty(t, store.imported)
}

func TestImportJobsHandler_MethodNotAllowed(t *testing.T) {
	h := NewImportHandler(&fakeJobStore{}, arbor.NewLogger())

	rec := doJSON(t, h.ImportJobsHandler, http.MethodGet, "/api/jobs/import", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
