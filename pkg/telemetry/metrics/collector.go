package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"maturity-hq/steward/pkg/config"
)

// unmatchedRoute labels requests that matched no route, and routes beyond
// the cardinality limit.
const unmatchedRoute = "other"

// Collector is the main orchestrator for all Prometheus metrics in Steward.
// It satisfies the metrics interfaces of the worker pool and the TTL
// sweeper, and supplies the audit trail's integrity hook.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry
	now      func() time.Time

	jobMetrics   *JobMetrics
	sweepMetrics *SweepMetrics
	auditMetrics *AuditMetrics
	httpMetrics  *HTTPMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a new registry
// is created with the Go runtime and process collectors.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	pool := jobs.NewPool(poolCfg, store, registry, trail, jobs.WithMetrics(collector))
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = append([]float64(nil), config.DefaultDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		now:                time.Now,
		jobMetrics:         NewJobMetrics(cfg, registry),
		sweepMetrics:       NewSweepMetrics(cfg, registry),
		auditMetrics:       NewAuditMetrics(cfg, registry),
		httpMetrics:        NewHTTPMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(200),
	}
}

// JobStarted records a job claimed by a worker.
func (c *Collector) JobStarted(jobType string) {
	if !c.config.IsEnabled() {
		return
	}
	c.jobMetrics.Started(jobType)
}

// JobFinished records the outcome of a job execution.
func (c *Collector) JobFinished(jobType, outcome string, duration time.Duration) {
	if !c.config.IsEnabled() {
		return
	}
	c.jobMetrics.Finished(jobType, outcome, duration)
}

// JobReaped records a job recovered by the reaper.
func (c *Collector) JobReaped(jobType string) {
	if !c.config.IsEnabled() {
		return
	}
	c.jobMetrics.Reaped(jobType)
}

// SweepFinished records one category sweep.
func (c *Collector) SweepFinished(category string, deleted int64, duration time.Duration, err error) {
	if !c.config.IsEnabled() {
		return
	}
	c.sweepMetrics.Record(category, deleted, duration, err, c.now())
}

// IntegrityFailure records an audit event that failed verification. Its
// signature matches the audit trail's integrity hook.
func (c *Collector) IntegrityFailure(eventID string) {
	if !c.config.IsEnabled() {
		return
	}
	c.auditMetrics.integrityFailures.Inc()
}

// VerificationFinished records the result of a range verification.
func (c *Collector) VerificationFinished(valid bool) {
	if !c.config.IsEnabled() {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	c.auditMetrics.verifications.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records a completed API request. route is the matched
// route pattern, never the raw path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.config.IsEnabled() {
		return
	}
	if route == "" || !c.cardinalityLimiter.Allow(method+" "+route) {
		route = unmatchedRoute
	}
	c.httpMetrics.Record(method, route, status, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet may be used: it is already known or the
// limit has not been reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
