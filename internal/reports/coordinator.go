// -----------------------------------------------------------------------
// Report Coordinator - Artifact directory layout and listing
// -----------------------------------------------------------------------

package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// defaultListLimit caps ListReports when the caller does not.
const defaultListLimit = 50

// Options select what one Generate call produces.
type Options struct {
	Formats   []string // Defaults to markdown, plus HTML when enabled in config
	OutputDir string   // Defaults to the configured reports directory
}

// Coordinator owns the reports directory: it assigns each generation a scan
// id, hands the generator a dedicated subdirectory, and lists what previous
// runs produced. Rendering itself is the generator's business.
type Coordinator struct {
	generator interfaces.ReportGenerator
	cfg       common.ReportsConfig
	logger    arbor.ILogger
}

// NewCoordinator creates a report coordinator. A nil generator selects the
// built-in markdown/HTML renderer.
func NewCoordinator(generator interfaces.ReportGenerator, cfg common.ReportsConfig, logger arbor.ILogger) *Coordinator {
	if generator == nil {
		generator = NewGenerator(logger)
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./reports"
	}
	return &Coordinator{generator: generator, cfg: cfg, logger: logger}
}

// Generate renders a scan result into report artifacts under
// <outputDir>/<scan-id>/. Generator failures propagate to the caller; a scan
// id is only considered to exist once its artifacts are fully written.
func (c *Coordinator) Generate(ctx context.Context, result models.ScanResult, opts Options) ([]models.ReportArtifact, error) {
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = c.cfg.OutputDir
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = []string{models.ReportFormatMarkdown}
		if c.cfg.HTMLEnabled {
			formats = append(formats, models.ReportFormatHTML)
		}
	}

	scanID := uuid.New().String()
	dir := filepath.Join(outputDir, scanID)

	artifacts, err := c.generator.Generate(ctx, result, dir, formats)
	if err != nil {
		return nil, fmt.Errorf("report generation for scan %s failed: %w", scanID, err)
	}
	for i := range artifacts {
		artifacts[i].ScanID = scanID
	}

	c.logger.Info().
		Str("scan_id", scanID).
		Int("artifacts", len(artifacts)).
		Str("dir", dir).
		Msg("Report generated")

	return artifacts, nil
}

// ListReports returns artifacts across all scans, most recent first.
func (c *Coordinator) ListReports(limit int) []models.ReportArtifact {
	if limit <= 0 {
		limit = defaultListLimit
	}

	scanDirs, err := os.ReadDir(c.cfg.OutputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("dir", c.cfg.OutputDir).Msg("Failed to list reports")
		}
		return nil
	}

	var artifacts []models.ReportArtifact
	for _, entry := range scanDirs {
		if !entry.IsDir() {
			continue
		}
		artifacts = append(artifacts, c.scanArtifacts(entry.Name())...)
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].GeneratedAt.After(artifacts[j].GeneratedAt)
	})
	if len(artifacts) > limit {
		artifacts = artifacts[:limit]
	}
	return artifacts
}

// GetReport returns the artifacts of one scan, or nil when unknown.
func (c *Coordinator) GetReport(scanID string) []models.ReportArtifact {
	// Reject anything that could escape the reports directory.
	if scanID == "" || scanID != filepath.Base(scanID) {
		return nil
	}
	return c.scanArtifacts(scanID)
}

// scanArtifacts reads one scan directory into artifact records.
func (c *Coordinator) scanArtifacts(scanID string) []models.ReportArtifact {
	dir := filepath.Join(c.cfg.OutputDir, scanID)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var artifacts []models.ReportArtifact
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		format := formatFromName(file.Name())
		if format == "" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, models.ReportArtifact{
			ScanID:      scanID,
			Format:      format,
			Path:        filepath.Join(dir, file.Name()),
			GeneratedAt: info.ModTime().UTC(),
		})
	}
	return artifacts
}

func formatFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md":
		return models.ReportFormatMarkdown
	case ".html":
		return models.ReportFormatHTML
	}
	return ""
}
