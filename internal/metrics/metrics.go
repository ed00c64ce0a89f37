// Package metrics holds the Prometheus instruments for probe runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sessionprobe"

// Probe outcomes used as the "outcome" label.
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

// Metrics is nil-safe: every recording method is a no-op on a nil receiver.
type Metrics struct {
	ProbesTotal   *prometheus.CounterVec
	ProbeDuration prometheus.Histogram
	RunsTotal     *prometheus.CounterVec
	ActiveRuns    prometheus.Gauge
	ProbeOffset   prometheus.Gauge
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ProbesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Probes issued, by outcome",
			},
			[]string{"outcome"},
		),
		ProbeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Round trip time of a single probe",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RunsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Finished runs, by terminal status",
			},
			[]string{"status"},
		),
		ActiveRuns: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Runs currently in progress",
			},
		),
		ProbeOffset: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "probe_offset_seconds",
				Help:      "Idle offset currently being tested",
			},
		),
	}
}

func (m *Metrics) ObserveProbe(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(outcome).Inc()
	m.ProbeDuration.Observe(took.Seconds())
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetOffset(seconds uint) {
	if m == nil {
		return
	}
	m.ProbeOffset.Set(float64(seconds))
}
