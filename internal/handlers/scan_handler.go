// -----------------------------------------------------------------------
// Scan Handler - Validated scan-job creation endpoint
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/validation"
	"github.com/ternarybob/geminus/internal/worker"
)

// ScanHandler accepts duplicate-detection scan requests and turns them into
// queued jobs on the scan worker.
type ScanHandler struct {
	worker *worker.ScanWorker
	logger arbor.ILogger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(w *worker.ScanWorker, logger arbor.ILogger) *ScanHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &ScanHandler{worker: w, logger: logger}
}

// ScanHandler queues a scan job for a repository.
// POST /api/scan
func (h *ScanHandler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, err := validation.DecodeScanRequest(r.Body)
	if err != nil {
		WriteValidationError(w, err)
		return
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = common.NewScanID()
	}

	data := map[string]interface{}{
		"repositoryPath": req.RepositoryPath,
	}
	if req.ScanType != "" {
		data["scanType"] = req.ScanType
	}
	if req.Options != nil {
		data["forceRefresh"] = req.Options.ForceRefresh
		data["includeTests"] = req.Options.IncludeTests
		if req.Options.CacheEnabled != nil {
			data["cacheEnabled"] = *req.Options.CacheEnabled
		}
		if req.Options.MaxDepth != nil {
			data["maxDepth"] = *req.Options.MaxDepth
		}
	}

	job, err := h.worker.CreateJob(jobID, data)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			WriteError(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		WriteError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("repository_path", req.RepositoryPath).
		Msg("Scan job queued")

	WriteJSON(w, http.StatusCreated, job)
}
