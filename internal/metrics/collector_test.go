package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/events"
	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/orchestrator"
)

type fakeSource struct {
	stats orchestrator.Stats
	retry orchestrator.RetryMetrics
}

func (f *fakeSource) GetStats() orchestrator.Stats               { return f.stats }
func (f *fakeSource) GetRetryMetrics() orchestrator.RetryMetrics { return f.retry }

func newTestCollector(t *testing.T, source StatsSource) (*Collector, interfaces.EventService) {
	t.Helper()
	bus := events.NewService(arbor.NewLogger())
	c, err := NewCollector(bus, source, arbor.NewLogger())
	require.NoError(t, err)
	return c, bus
}

// scrape reads the collector's exposition text the way Prometheus would.
func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func publishJob(bus interfaces.EventService, eventType interfaces.EventType, job *models.Job) {
	bus.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: job})
}

func TestCollector_CountsLifecycleEvents(t *testing.T) {
	c, bus := newTestCollector(t, nil)

	job := models.NewJob("j1", "p", "scan", nil)
	publishJob(bus, interfaces.EventJobCreated, job)
	publishJob(bus, interfaces.EventJobCreated, job)
	publishJob(bus, interfaces.EventJobFailed, job)
	publishJob(bus, interfaces.EventJobCancelled, job)

	body := scrape(t, c)
	assert.Contains(t, body, "geminus_jobs_created_total 2")
	assert.Contains(t, body, "geminus_jobs_completed_total 0")
	assert.Contains(t, body, "geminus_jobs_failed_total 1")
	assert.Contains(t, body, "geminus_jobs_cancelled_total 1")
}

func TestCollector_ScanCacheHitAndMiss(t *testing.T) {
	c, bus := newTestCollector(t, nil)

	hit := models.NewJob("j1", "p", "scan", nil)
	hit.Result = map[string]interface{}{
		"cache_metadata": map[string]interface{}{"from_cache": true},
	}
	miss := models.NewJob("j2", "p", "scan", nil)
	miss.Result = map[string]interface{}{"metrics": map[string]interface{}{}}

	// Non-scan completions never touch the cache counters.
	other := models.NewJob("j3", "p", "import", nil)
	other.Result = map[string]interface{}{}

	publishJob(bus, interfaces.EventJobCompleted, hit)
	publishJob(bus, interfaces.EventJobCompleted, miss)
	publishJob(bus, interfaces.EventJobCompleted, other)

	body := scrape(t, c)
	assert.Contains(t, body, "geminus_scan_cache_hits_total 1")
	assert.Contains(t, body, "geminus_scan_cache_misses_total 1")
	assert.Contains(t, body, "geminus_jobs_completed_total 3")
}

func TestCollector_ObservesJobDuration(t *testing.T) {
	c, bus := newTestCollector(t, nil)

	started := time.Now().Add(-250 * time.Millisecond)
	completed := time.Now()
	job := models.NewJob("j1", "p", "scan", nil)
	job.StartedAt = &started
	job.CompletedAt = &completed

	publishJob(bus, interfaces.EventJobCompleted, job)

	// A job that never started contributes no observation.
	publishJob(bus, interfaces.EventJobCompleted, models.NewJob("j2", "p", "scan", nil))

	body := scrape(t, c)
	assert.Contains(t, body, "geminus_job_duration_seconds_count 1")
}

func TestCollector_GaugesReadSourceAtScrape(t *testing.T) {
	source := &fakeSource{
		stats: orchestrator.Stats{ActiveCount: 2, QueueLength: 5},
		retry: orchestrator.RetryMetrics{ActiveRetries: 3},
	}
	c, _ := newTestCollector(t, source)

	body := scrape(t, c)
	assert.Contains(t, body, "geminus_jobs_active 2")
	assert.Contains(t, body, "geminus_jobs_queued 5")
	assert.Contains(t, body, "geminus_retry_entries 3")

	// Gauges follow the source without republishing.
	source.stats = orchestrator.Stats{ActiveCount: 0, QueueLength: 1}
	source.retry = orchestrator.RetryMetrics{}

	body = scrape(t, c)
	assert.Contains(t, body, "geminus_jobs_active 0")
	assert.Contains(t, body, "geminus_jobs_queued 1")
	assert.Contains(t, body, "geminus_retry_entries 0")
}

func TestCollector_NilSourceSkipsGauges(t *testing.T) {
	c, _ := newTestCollector(t, nil)

	body := scrape(t, c)
	assert.NotContains(t, body, "geminus_jobs_active")
	assert.Contains(t, body, "geminus_jobs_created_total 0")
}

func TestCollector_IgnoresForeignPayloads(t *testing.T) {
	c, bus := newTestCollector(t, nil)

	bus.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobCreated,
		Payload: "not a job",
	})

	assert.Contains(t, scrape(t, c), "geminus_jobs_created_total 0")
}
