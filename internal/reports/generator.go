// -----------------------------------------------------------------------
// Report Generator - Built-in markdown and HTML renderers
// -----------------------------------------------------------------------

package reports

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
)

// topGroupLimit caps how many duplicate groups the summary lists.
const topGroupLimit = 10

// Generator is the built-in report renderer. Markdown is the source format;
// HTML is the same document run through goldmark into a standalone page.
type Generator struct {
	md     goldmark.Markdown
	logger arbor.ILogger
}

// NewGenerator creates the built-in generator.
func NewGenerator(logger arbor.ILogger) *Generator {
	return &Generator{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		),
		logger: logger,
	}
}

// Generate renders the requested formats into outputDir. Every file lands via
// temp-file-and-rename so a crashed run never leaves a half-written artifact.
func (g *Generator) Generate(ctx context.Context, result models.ScanResult, outputDir string, formats []string) ([]models.ReportArtifact, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	markdown := renderMarkdown(result)
	now := time.Now().UTC()

	var artifacts []models.ReportArtifact
	for _, format := range formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			name string
			data []byte
		)
		switch format {
		case models.ReportFormatMarkdown:
			name = "report.md"
			data = []byte(markdown)
		case models.ReportFormatHTML:
			name = "report.html"
			rendered, err := g.renderHTML(markdown, result)
			if err != nil {
				return nil, err
			}
			data = rendered
		default:
			return nil, fmt.Errorf("unsupported report format: %s", format)
		}

		path := filepath.Join(outputDir, name)
		if err := writeAtomic(path, data); err != nil {
			return nil, err
		}

		artifacts = append(artifacts, models.ReportArtifact{
			Format:      format,
			Path:        path,
			GeneratedAt: now,
		})
	}

	return artifacts, nil
}

// renderHTML converts the markdown summary into a standalone HTML page.
func (g *Generator) renderHTML(markdown string, result models.ScanResult) ([]byte, error) {
	var body bytes.Buffer
	if err := g.md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("failed to render report HTML: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>Duplicate Detection Report (%s)</title>\n", html.EscapeString(result.ScanType()))
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// renderMarkdown builds the summary document: scan type, the metrics table,
// and the highest-impact duplicate groups.
func renderMarkdown(result models.ScanResult) string {
	var b strings.Builder

	b.WriteString("# Duplicate Detection Report\n\n")
	fmt.Fprintf(&b, "- **Scan type:** %s\n", result.ScanType())
	fmt.Fprintf(&b, "- **Generated:** %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duplicate groups:** %d\n", result.TotalGroups())
	fmt.Fprintf(&b, "- **Suggestions:** %d\n", result.TotalSuggestions())
	fmt.Fprintf(&b, "- **High-impact groups (score >= %d):** %d\n", models.HighImpactThreshold, result.HighImpactCount())

	metrics := result.Metrics()
	if len(metrics) > 0 {
		b.WriteString("\n## Metrics\n\n")
		b.WriteString("| Metric | Value |\n|---|---|\n")
		keys := make([]string, 0, len(metrics))
		for k := range metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %v |\n", k, metrics[k])
		}
	}

	groups := result.Groups()
	if len(groups) > 0 {
		sort.SliceStable(groups, func(i, j int) bool {
			return impactScore(groups[i]) > impactScore(groups[j])
		})
		if len(groups) > topGroupLimit {
			groups = groups[:topGroupLimit]
		}

		b.WriteString("\n## Top duplicate groups\n")
		for i, group := range groups {
			fmt.Fprintf(&b, "\n### %d. Impact score %d\n", i+1, impactScore(group))
			for _, file := range groupFiles(group) {
				fmt.Fprintf(&b, "- `%s`\n", file)
			}
		}
	}

	return b.String()
}

func impactScore(group map[string]interface{}) int {
	switch v := group["impact_score"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// groupFiles extracts the file list a duplicate group spans, tolerating both
// plain strings and {path} objects in the detector payload.
func groupFiles(group map[string]interface{}) []string {
	raw, ok := group["files"].([]interface{})
	if !ok {
		return nil
	}
	files := make([]string, 0, len(raw))
	for _, f := range raw {
		switch v := f.(type) {
		case string:
			files = append(files, v)
		case map[string]interface{}:
			if p, ok := v["path"].(string); ok {
				files = append(files, p)
			}
		}
	}
	return files
}

// writeAtomic writes data next to the target and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("failed to stage report file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush report file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize report file: %w", err)
	}
	return nil
}

var _ interfaces.ReportGenerator = (*Generator)(nil)
