// -----------------------------------------------------------------------
// Routes - HTTP route table for the job server
// -----------------------------------------------------------------------

package server

import (
	"net/http"

	"github.com/ternarybob/geminus/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (activity feed + log streaming)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Prometheus scrape endpoint
	mux.Handle("/metrics", s.app.Metrics.Handler())

	// API routes - Scans
	mux.HandleFunc("/api/scan", s.app.ScanHandler.ScanHandler) // POST - queue a scan job

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsCollection)
	mux.HandleFunc("/api/jobs/import", s.app.ImportHandler.ImportJobsHandler) // POST - bulk import
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)                           // GET /{id}, POST /{id}/cancel|pause|resume

	// API routes - Status and pipelines
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/pipelines", s.app.PipelineHandler.ListPipelinesHandler)
	mux.HandleFunc("/api/pipelines/", s.app.PipelineHandler.PipelineJobsHandler) // GET /{id}/jobs

	// API routes - Scan cache
	mux.HandleFunc("/api/cache/stats", s.app.CacheHandler.CacheStatsHandler)
	mux.HandleFunc("/api/cache/scans", s.app.CacheHandler.ListCachedScansHandler)
	mux.HandleFunc("/api/cache/invalidate", s.app.CacheHandler.InvalidateCacheHandler)
	mux.HandleFunc("/api/cache/clear", s.app.CacheHandler.ClearCacheHandler)

	// API routes - Reports
	mux.HandleFunc("/api/reports", s.app.ReportHandler.ListReportsHandler)
	mux.HandleFunc("/api/reports/", s.app.ReportHandler.GetReportHandler) // GET /{scanId}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsCollection routes /api/jobs requests (list and create)
func (s *Server) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.JobHandler.ListJobsHandler, s.app.JobHandler.CreateJobHandler)
}

// handleJobRoutes routes /api/jobs/{id} requests and lifecycle subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		matched := RouteByPathSuffix(w, r, "/api/jobs/", []PathSuffixRouter{
			{Suffix: "/cancel", Handler: s.app.JobHandler.CancelJobHandler},
			{Suffix: "/pause", Handler: s.app.JobHandler.PauseJobHandler},
			{Suffix: "/resume", Handler: s.app.JobHandler.ResumeJobHandler},
		})
		if !matched {
			s.app.APIHandler.NotFoundHandler(w, r)
		}
	case http.MethodGet:
		s.app.JobHandler.GetJobHandler(w, r)
	default:
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "method "+r.Method+" is not supported here")
	}
}
