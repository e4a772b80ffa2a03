// -----------------------------------------------------------------------
// Pipeline Handler - Store-backed pipeline and per-pipeline job listings
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/validation"
)

// PipelineHandler reads pipeline groupings straight from the durable store,
// so it also covers jobs from earlier runs of the server.
type PipelineHandler struct {
	store  interfaces.JobStorage
	logger arbor.ILogger
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(store interfaces.JobStorage, logger arbor.ILogger) *PipelineHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &PipelineHandler{store: store, logger: logger}
}

// ListPipelinesHandler returns the distinct pipeline ids in the store.
// GET /api/pipelines
func (h *PipelineHandler) ListPipelinesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	pipelines, err := h.store.ListPipelines(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list pipelines")
		WriteError(w, http.StatusInternalServerError, "Internal Server Error", "failed to list pipelines")
		return
	}
	if pipelines == nil {
		pipelines = []string{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pipelines": pipelines,
		"count":     len(pipelines),
	})
}

// PipelineJobsHandler returns the stored jobs of one pipeline, newest first.
// GET /api/pipelines/{id}/jobs?status=failed&limit=50&offset=0
func (h *PipelineHandler) PipelineJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	// Path: /api/pipelines/{id}/jobs
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 || parts[2] == "" || parts[3] != "jobs" {
		WriteError(w, http.StatusBadRequest, "Bad Request", "pipeline id is required")
		return
	}
	pipelineID := parts[2]

	query := r.URL.Query()
	jobQuery := interfaces.JobQuery{
		Status: models.JobStatus(query.Get("status")),
		Limit:  validation.SanitizeLimit(query.Get("limit"), interfaces.DefaultJobQueryLimit, interfaces.MaxJobQueryLimit),
		Offset: validation.SanitizeOffset(query.Get("offset")),
	}

	jobs, err := h.store.GetJobs(r.Context(), pipelineID, jobQuery)
	if err != nil {
		h.logger.Error().Err(err).Str("pipeline_id", pipelineID).Msg("Failed to list pipeline jobs")
		WriteError(w, http.StatusInternalServerError, "Internal Server Error", "failed to list pipeline jobs")
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pipelineId": pipelineID,
		"jobs":       jobs,
		"count":      len(jobs),
		"limit":      jobQuery.Limit,
		"offset":     jobQuery.Offset,
	})
}
