// -----------------------------------------------------------------------
// Report Handler - Generated report artifact listings
// -----------------------------------------------------------------------

package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/reports"
	"github.com/ternarybob/geminus/internal/validation"
)

// ReportHandler lists the report artifacts the coordinator has written.
type ReportHandler struct {
	reports *reports.Coordinator
	logger  arbor.ILogger
}

// NewReportHandler creates a new report handler
func NewReportHandler(coordinator *reports.Coordinator, logger arbor.ILogger) *ReportHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &ReportHandler{reports: coordinator, logger: logger}
}

// ListReportsHandler returns report artifacts, newest first.
// GET /api/reports?limit=50
func (h *ReportHandler) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := validation.SanitizeLimit(r.URL.Query().Get("limit"), interfaces.DefaultJobQueryLimit, interfaces.MaxJobQueryLimit)

	artifacts := h.reports.ListReports(limit)
	if artifacts == nil {
		artifacts = []models.ReportArtifact{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reports": artifacts,
		"count":   len(artifacts),
	})
}

// GetReportHandler returns the artifacts of one scan.
// GET /api/reports/{scanId}
func (h *ReportHandler) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	// Path: /api/reports/{scanId}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Bad Request", "scan id is required")
		return
	}
	scanID := parts[2]

	artifacts := h.reports.GetReport(scanID)
	if len(artifacts) == 0 {
		WriteError(w, http.StatusNotFound, "Not Found", fmt.Sprintf("no report found for scan %s", scanID))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scanId":  scanID,
		"reports": artifacts,
		"count":   len(artifacts),
	})
}
