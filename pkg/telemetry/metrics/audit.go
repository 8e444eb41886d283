package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"maturity-hq/steward/pkg/config"
)

// AuditMetrics tracks audit trail integrity.
type AuditMetrics struct {
	integrityFailures prometheus.Counter
	verifications     *prometheus.CounterVec
}

// NewAuditMetrics creates and registers audit metrics with the provided registry.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	m := &AuditMetrics{
		integrityFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_integrity_failures_total",
				Help:      "Total number of audit events whose integrity tag did not verify",
			},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_verifications_total",
				Help:      "Total number of range verifications by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(m.integrityFailures, m.verifications)
	return m
}
