// -----------------------------------------------------------------------
// Import Handler - Additive bulk import of exported job dumps
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
)

// ImportHandler ingests exported job dumps into the durable store.
type ImportHandler struct {
	store  interfaces.JobStorage
	logger arbor.ILogger
}

// NewImportHandler creates a new import handler
func NewImportHandler(store interfaces.JobStorage, logger arbor.ILogger) *ImportHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &ImportHandler{store: store, logger: logger}
}

// ImportJobsHandler bulk-imports job records. Accepts either a bare JSON
// array or a {"jobs": [...]} envelope; the store normalizes field names and
// skips ids it already holds.
// POST /api/jobs/import
func (h *ImportHandler) ImportJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Bad Request", "failed to read request body")
		return
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(body, &records); err != nil {
		var envelope struct {
			Jobs []map[string]interface{} `json:"jobs"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Jobs == nil {
			WriteError(w, http.StatusBadRequest, "Bad Request", "body must be a JSON array of job records or {\"jobs\": [...]}")
			return
		}
		records = envelope.Jobs
	}

	result := h.store.BulkImportJobs(r.Context(), records)

	h.logger.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Bulk job import finished")

	WriteJSON(w, http.StatusOK, result)
}
