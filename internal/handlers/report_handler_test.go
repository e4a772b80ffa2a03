package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/common"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/reports"
)

func newReportFixture(t *testing.T) (*ReportHandler, string) {
	t.Helper()

	coordinator := reports.NewCoordinator(nil, common.ReportsConfig{
		OutputDir:   t.TempDir(),
		HTMLEnabled: false,
	}, arbor.NewLogger())

	result := models.ScanResult{
		"scan_type":        "intra-project",
		"duplicate_groups": []interface{}{},
		"suggestions":      []interface{}{},
		"metrics":          map[string]interface{}{"files_scanned": 3},
	}
	artifacts, err := coordinator.Generate(context.Background(), result, reports.Options{})
	require.NoError(t, err)
	require.NotEmpty(t, artifacts)

	return NewReportHandler(coordinator, arbor.NewLogger()), artifacts[0].ScanID
}

func TestListReportsHandler(t *testing.T) {
	h, scanID := newReportFixture(t)

	rec := doJSON(t, h.ListReportsHandler, http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])

	reportsList := body["reports"].([]interface{})
	require.Len(t, reportsList, 1)
	first := reportsList[0].(map[string]interface{})
	assert.Equal(t, scanID, first["scan_id"])
	assert.Equal(t, "markdown", first["format"])
}

func TestListReportsHandler_EmptyDir(t *testing.T) {
	coordinator := reports.NewCoordinator(nil, common.ReportsConfig{
		OutputDir: t.TempDir(),
	}, arbor.NewLogger())
	h := NewReportHandler(coordinator, arbor.NewLogger())

	rec := doJSON(t, h.ListReportsHandler, http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, []interface{}{}, body["reports"])
}

func TestGetReportHandler(t *testing.T) {
	h, scanID := newReportFixture(t)

	rec := doJSON(t, h.GetReportHandler, http.MethodGet, "/api/reports/"+scanID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, scanID, body["scanId"])
	assert.EqualValues(t, 1, body["count"])
}

func TestGetReportHandler_NotFound(t *testing.T) {
	h, _ := newReportFixture(t)

	rec := doJSON(t, h.GetReportHandler, http.MethodGet, "/api/reports/no-such-scan", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "no-such-scan")
}
