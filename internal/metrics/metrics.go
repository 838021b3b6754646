// Package metrics registers the Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the collectors shared by every executor in the process.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	StepCacheHits   prometheus.Counter
	StepCacheMisses prometheus.Counter
	DeliveriesTotal *prometheus.CounterVec
}

// New returns the process-wide Metrics, registering them on first use.
//
// Metrics:
//   - briefing_runs_total{run_type,status}
//   - briefing_stage_duration_seconds{stage}
//   - briefing_stepcache_hits_total, briefing_stepcache_misses_total
//   - briefing_deliveries_total{channel,status}
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "briefing_runs_total",
					Help: "Total number of pipeline runs",
				},
				[]string{"run_type", "status"},
			),
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "briefing_stage_duration_seconds",
					Help:    "Duration of pipeline stages in seconds",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
				},
				[]string{"stage"},
			),
			StepCacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "briefing_stepcache_hits_total",
					Help: "Total number of test step cache hits",
				},
			),
			StepCacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "briefing_stepcache_misses_total",
					Help: "Total number of test step cache misses",
				},
			),
			DeliveriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "briefing_deliveries_total",
					Help: "Total number of delivery attempts",
				},
				[]string{"channel", "status"},
			),
		}
	})
	return globalMetrics
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(runType, status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(runType, status).Inc()
}

// RecordCache counts a step cache lookup.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.StepCacheHits.Inc()
	} else {
		m.StepCacheMisses.Inc()
	}
}

// RecordDelivery counts a delivery log entry.
func (m *Metrics) RecordDelivery(channel, status string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(channel, status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
