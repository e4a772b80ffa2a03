// -----------------------------------------------------------------------
// Metrics Collector - Prometheus view of the job pipeline
// -----------------------------------------------------------------------

package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/geminus/internal/interfaces"
	"github.com/ternarybob/geminus/internal/models"
	"github.com/ternarybob/geminus/internal/orchestrator"
)

const namespace = "geminus"

// StatsSource exposes the live counts the gauges read on scrape. The
// orchestrator server satisfies it.
type StatsSource interface {
	GetStats() orchestrator.Stats
	GetRetryMetrics() orchestrator.RetryMetrics
}

// Collector bridges the event bus and orchestrator stats into Prometheus.
// Counters accumulate from lifecycle events; gauges read the source at
// scrape time. Everything registers against a private registry so multiple
// collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry
	logger   arbor.ILogger

	jobsCreated   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsCancelled prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	jobDuration   prometheus.Histogram
}

// NewCollector registers the pipeline metrics and subscribes to the job
// lifecycle channels. Register it before starting the job server so no
// transition slips past the counters.
func NewCollector(events interfaces.EventService, source StatsSource, logger arbor.ILogger) (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "created_total",
			Help: "Total number of jobs accepted into the pipeline",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "completed_total",
			Help: "Total number of jobs that finished successfully",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "failed_total",
			Help: "Total number of jobs that failed terminally",
		}),
		jobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "cancelled_total",
			Help: "Total number of jobs cancelled by callers",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan_cache", Name: "hits_total",
			Help: "Total number of scans answered from the commit-keyed cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan_cache", Name: "misses_total",
			Help: "Total number of scans that ran the detector",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_duration_seconds",
			Help:    "Wall-clock duration of completed jobs",
			Buckets: prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		c.jobsCreated, c.jobsCompleted, c.jobsFailed, c.jobsCancelled,
		c.cacheHits, c.cacheMisses, c.jobDuration,
	}

	if source != nil {
		collectors = append(collectors,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "jobs", Name: "active",
				Help: "Jobs currently executing",
			}, func() float64 { return float64(source.GetStats().ActiveCount) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "jobs", Name: "queued",
				Help: "Jobs waiting for a slot",
			}, func() float64 { return float64(source.GetStats().QueueLength) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "retry", Name: "entries",
				Help: "Jobs currently tracked for retry",
			}, func() float64 { return float64(source.GetRetryMetrics().ActiveRetries) }),
		)
	}

	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return nil, err
		}
	}

	if err := c.subscribe(events); err != nil {
		return nil, err
	}
	return c, nil
}

// subscribe attaches the counter handlers to the lifecycle channels.
func (c *Collector) subscribe(events interfaces.EventService) error {
	handlers := map[interfaces.EventType]func(*models.Job){
		interfaces.EventJobCreated:   func(*models.Job) { c.jobsCreated.Inc() },
		interfaces.EventJobCompleted: c.onCompleted,
		interfaces.EventJobFailed:    func(*models.Job) { c.jobsFailed.Inc() },
		interfaces.EventJobCancelled: func(*models.Job) { c.jobsCancelled.Inc() },
	}

	for eventType, handler := range handlers {
		handler := handler
		err := events.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			job, ok := event.Payload.(*models.Job)
			if !ok {
				return nil
			}
			handler(job)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// onCompleted counts the completion, its duration, and for scan jobs whether
// the commit-keyed cache answered it.
func (c *Collector) onCompleted(job *models.Job) {
	c.jobsCompleted.Inc()

	if job.StartedAt != nil && job.CompletedAt != nil {
		c.jobDuration.Observe(job.CompletedAt.Sub(*job.StartedAt).Seconds())
	}

	if job.JobType != "scan" || job.Result == nil {
		return
	}
	if models.ScanResult(job.Result).FromCache() {
		c.cacheHits.Inc()
	} else {
		c.cacheMisses.Inc()
	}
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
