// -----------------------------------------------------------------------
// Job Handler - Job creation, snapshots, and lifecycle operations
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/validation"
	"github.com/ternarybob/geminus/internal/worker"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	worker *worker.ScanWorker
	logger arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(w *worker.ScanWorker, logger arbor.ILogger) *JobHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &JobHandler{worker: w, logger: logger}
}

// createJobRequest is the POST /api/jobs body. Data is passed through to the
// job untouched; the worker decides what it means.
type createJobRequest struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data"`
}

// CreateJobHandler creates a generic job from an id and a data payload.
// POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req createJobRequest
	if err := dec.Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := validation.ValidateJobID(req.ID); err != nil {
		WriteValidationError(w, err)
		return
	}

	job, err := h.worker.CreateJob(req.ID, req.Data)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			WriteError(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		WriteError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	h.logger.Info().Str("job_id", job.ID).Msg("Job queued via API")

	WriteJSON(w, http.StatusCreated, job)
}

// ListJobsHandler returns job snapshots, newest first.
// GET /api/jobs?status=completed&limit=50&offset=0
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	limit := validation.SanitizeLimit(query.Get("limit"), interfaces.DefaultJobQueryLimit, interfaces.MaxJobQueryLimit)
	offset := validation.SanitizeOffset(query.Get("offset"))
	status := query.Get("status")

	jobs := h.worker.GetAllJobs()

	// GetAllJobs is oldest-first; dashboards read newest-first
	for i, j := 0, len(jobs)-1; i < j; i, j = i+1, j-1 {
		jobs[i], jobs[j] = jobs[j], jobs[i]
	}

	if status != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if string(job.Status) == status {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	total := len(jobs)
	if offset >= total {
		jobs = nil
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		jobs = jobs[offset:end]
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":       jobs,
		"totalCount": total,
		"limit":      limit,
		"offset":     offset,
	})
}

// GetJobHandler returns a single job snapshot.
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := jobIDFromPath(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Bad Request", "job id is required")
		return
	}

	job := h.worker.GetJob(jobID)
	if job == nil {
		WriteError(w, http.StatusNotFound, "Not Found", fmt.Sprintf("job %s not found", jobID))
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// CancelJobHandler requests cancellation of a job.
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, "cancel", h.worker.CancelJob)
}

// PauseJobHandler pauses a queued job.
// POST /api/jobs/{id}/pause
func (h *JobHandler) PauseJobHandler(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, "pause", h.worker.PauseJob)
}

// ResumeJobHandler re-queues a paused job.
// POST /api/jobs/{id}/resume
func (h *JobHandler) ResumeJobHandler(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, "resume", h.worker.ResumeJob)
}

// lifecycleOp runs a state-machine operation and always answers 200: invalid
// transitions are data ({success:false}), not transport errors.
func (h *JobHandler) lifecycleOp(w http.ResponseWriter, r *http.Request, name string, op func(string) interfaces.OpResult) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID := jobIDFromPath(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Bad Request", "job id is required")
		return
	}

	result := op(jobID)
	if !result.Success {
		h.logger.Debug().
			Str("job_id", jobID).
			Str("op", name).
			Str("reason", result.Message).
			Msg("Lifecycle operation rejected")
	}

	WriteJSON(w, http.StatusOK, result)
}

// jobIDFromPath extracts the id segment from /api/jobs/{id}[/action]
func jobIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
