package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"maturity-hq/steward/pkg/config"
)

// SweepMetrics tracks TTL sweeps per retention category.
type SweepMetrics struct {
	deleted  *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  *prometheus.GaugeVec
}

// NewSweepMetrics creates and registers sweep metrics with the provided registry.
func NewSweepMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SweepMetrics {
	m := &SweepMetrics{
		deleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_deleted_total",
				Help:      "Total number of records removed by TTL sweeps",
			},
			[]string{"category"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_sweeps_total",
				Help:      "Total number of category sweeps by result",
			},
			[]string{"category", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_sweep_duration_seconds",
				Help:      "Duration of category sweeps in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"category"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retention_last_success_timestamp_seconds",
				Help:      "Unix time of the last successful sweep of a category",
			},
			[]string{"category"},
		),
	}

	registry.MustRegister(m.deleted, m.runs, m.duration, m.lastRun)
	return m
}

// Record records one category sweep.
func (m *SweepMetrics) Record(category string, deleted int64, d time.Duration, err error, now time.Time) {
	result := "success"
	if err != nil {
		result = "error"
	} else {
		m.lastRun.WithLabelValues(category).Set(float64(now.Unix()))
	}
	m.runs.WithLabelValues(category, result).Inc()
	m.duration.WithLabelValues(category).Observe(d.Seconds())
	if deleted > 0 {
		m.deleted.WithLabelValues(category).Add(float64(deleted))
	}
}
