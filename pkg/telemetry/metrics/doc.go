// Package metrics provides Prometheus metrics collection for Steward.
//
// # Metrics Categories
//
//   - Job metrics: claims, outcomes, durations, in-flight gauge and reaped jobs
//   - Sweep metrics: records deleted per retention category, sweep results
//     and the time of the last successful sweep
//   - Audit metrics: integrity tag failures and range verification results
//   - HTTP metrics: API requests by method, route pattern and status
//
// # Usage
//
// The Collector plugs into the components that produce measurements:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	pool := jobs.NewPool(poolCfg, store, handlers, trail, jobs.WithMetrics(collector))
//	sweeper := retention.NewSweeper(registry, trail, retention.WithMetrics(collector))
//	trail := audit.NewTrail(store, keys, audit.WithIntegrityHook(collector.IntegrityFailure))
//	router.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Route labels use the matched route pattern and are capped by a
// CardinalityLimiter; anything beyond the cap is reported as "other".
package metrics
