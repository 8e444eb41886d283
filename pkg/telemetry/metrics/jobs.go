package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"maturity-hq/steward/pkg/config"
)

// JobMetrics tracks background job execution.
//
// Metrics:
//   - steward_jobs_started_total: jobs claimed by a worker, by type
//   - steward_jobs_finished_total: jobs finished, by type and outcome
//   - steward_job_duration_seconds: execution time histogram
//   - steward_jobs_in_flight: jobs currently executing
//   - steward_jobs_reaped_total: jobs recovered after exceeding their timeout
type JobMetrics struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	reaped   *prometheus.CounterVec
}

// NewJobMetrics creates and registers job metrics with the provided registry.
func NewJobMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *JobMetrics {
	m := &JobMetrics{
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_started_total",
				Help:      "Total number of jobs claimed by a worker",
			},
			[]string{"job_type"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_finished_total",
				Help:      "Total number of job executions by outcome",
			},
			[]string{"job_type", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "job_duration_seconds",
				Help:      "Duration of job executions in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"job_type"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_in_flight",
				Help:      "Number of jobs currently executing",
			},
			[]string{"job_type"},
		),
		reaped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "jobs_reaped_total",
				Help:      "Total number of jobs that exceeded their maximum execution time",
			},
			[]string{"job_type"},
		),
	}

	registry.MustRegister(m.started, m.finished, m.duration, m.inFlight, m.reaped)
	return m
}

// Started records a claimed job.
func (m *JobMetrics) Started(jobType string) {
	m.started.WithLabelValues(jobType).Inc()
	m.inFlight.WithLabelValues(jobType).Inc()
}

// Finished records the end of an execution.
func (m *JobMetrics) Finished(jobType, outcome string, d time.Duration) {
	m.inFlight.WithLabelValues(jobType).Dec()
	m.finished.WithLabelValues(jobType, outcome).Inc()
	m.duration.WithLabelValues(jobType).Observe(d.Seconds())
}

// Reaped records a job taken back by the reaper.
func (m *JobMetrics) Reaped(jobType string) {
	m.reaped.WithLabelValues(jobType).Inc()
}
