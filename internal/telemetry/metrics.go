// Package telemetry counts batch outcomes for the node_exporter textfile collector.
package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "signalwatch"

// Metrics holds the batch counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	candidatesTotal   *prometheus.CounterVec
	snapshotsTotal    prometheus.Counter
	trendsTotal       *prometheus.CounterVec
	trendErrorsTotal  prometheus.Counter
	batchDuration     *prometheus.HistogramVec
	lastRunTimestamps *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		candidatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candidates_total",
			Help:      "Candidate signals evaluated, labeled by decision.",
		}, []string{"decision"}),
		snapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "snapshots_written_total",
			Help:      "Metric snapshot rows appended.",
		}),
		trendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trends",
			Name:      "generated_total",
			Help:      "Trend rows persisted, labeled by direction.",
		}, []string{"direction"}),
		trendErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trends",
			Name:      "scope_errors_total",
			Help:      "Trend scopes skipped after an error.",
		}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of batch commands.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
		lastRunTimestamps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time a batch command last finished.",
		}, []string{"job"}),
	}

	m.registry.MustRegister(
		m.candidatesTotal,
		m.snapshotsTotal,
		m.trendsTotal,
		m.trendErrorsTotal,
		m.batchDuration,
		m.lastRunTimestamps,
	)
	return m
}

func (m *Metrics) CandidateEvaluated(decision string) {
	if m == nil {
		return
	}
	m.candidatesTotal.WithLabelValues(labelValue(decision)).Inc()
}

func (m *Metrics) SnapshotsWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.snapshotsTotal.Add(float64(n))
}

func (m *Metrics) TrendGenerated(direction string) {
	if m == nil {
		return
	}
	m.trendsTotal.WithLabelValues(labelValue(direction)).Inc()
}

func (m *Metrics) TrendScopeFailed() {
	if m == nil {
		return
	}
	m.trendErrorsTotal.Inc()
}

// ObserveRun records how long job took and stamps its completion time.
func (m *Metrics) ObserveRun(job string, started, finished time.Time) {
	if m == nil {
		return
	}
	job = labelValue(job)
	m.batchDuration.WithLabelValues(job).Observe(finished.Sub(started).Seconds())
	m.lastRunTimestamps.WithLabelValues(job).Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in text exposition format. Empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	trimmed := strings.TrimSpace(path)
	if m == nil || trimmed == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(trimmed, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", trimmed, err)
	}
	return nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func labelValue(v string) string {
	trimmed := strings.ToLower(strings.TrimSpace(v))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
