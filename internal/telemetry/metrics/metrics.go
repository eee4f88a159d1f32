// Package metrics holds the Prometheus instrumentation for the
// ingestion and signal pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles all WhaleTrack metrics on a dedicated Prometheus
// registry so the binaries expose only their own series.
type Registry struct {
	reg *prometheus.Registry

	IngestCycles    *prometheus.CounterVec
	IngestCoverage  prometheus.Gauge
	IngestDuration  prometheus.Histogram
	HealthState     prometheus.Gauge
	UniverseRefresh *prometheus.CounterVec

	SignalCycles   *prometheus.CounterVec
	SignalDuration *prometheus.HistogramVec
	AlertsFired    *prometheus.CounterVec
}

// Health state gauge values.
const (
	HealthValueHealthy  = 0
	HealthValueDegraded = 1
	HealthValueStale    = 2
)

// NewRegistry creates and registers all metrics.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		IngestCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaletrack_ingest_cycles_total",
				Help: "Snapshot ingestion cycles by resulting status",
			},
			[]string{"status"},
		),
		IngestCoverage: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "whaletrack_ingest_coverage_pct",
				Help: "Wallet fetch coverage of the most recent ingestion cycle",
			},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "whaletrack_ingest_duration_seconds",
				Help:    "Duration of snapshot ingestion cycles",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
			},
		),
		HealthState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "whaletrack_ingest_health_state",
				Help: "Pipeline health: 0 healthy, 1 degraded, 2 stale",
			},
		),
		UniverseRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaletrack_universe_refreshes_total",
				Help: "Universe refresh runs by resulting status",
			},
			[]string{"status"},
		),

		SignalCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaletrack_signal_cycles_total",
				Help: "Signal computation cycles by result (computed, locked, error)",
			},
			[]string{"result"},
		),
		SignalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whaletrack_signal_duration_seconds",
				Help:    "Per-asset signal computation duration",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"asset"},
		),
		AlertsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whaletrack_alerts_total",
				Help: "Alerts persisted, by type and suppression",
			},
			[]string{"alert_type", "suppressed"},
		),
	}

	r.reg.MustRegister(
		r.IngestCycles, r.IngestCoverage, r.IngestDuration, r.HealthState,
		r.UniverseRefresh, r.SignalCycles, r.SignalDuration, r.AlertsFired,
	)
	return r
}

// Prometheus returns the underlying registry for the HTTP handler.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}
