package models

import "time"

// ReportArtifact is one generated report file surfaced to callers.
type ReportArtifact struct {
	ScanID      string    `json:"scan_id"`
	Format      string    `json:"format"`
	Path        string    `json:"path"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Report formats produced by the built-in generator.
const (
	ReportFormatMarkdown = "markdown"
	ReportFormatHTML     = "html"
)
