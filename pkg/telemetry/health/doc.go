// Package health provides liveness and readiness endpoints for Steward.
//
//   - /health: liveness, 200 while the process serves requests
//   - /ready: readiness, runs every registered check; 503 if any fails
//   - /version: build information
//
// The server registers one check per backing dependency:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("governance_db", health.PingCheck(govDB))
//	checker.RegisterCheck("business_db", health.PingCheck(businessDB))
//	checker.RegisterCheck("challenge_store", health.PingCheck(redisStore))
//
// Checks run concurrently, each bounded by the check timeout.
package health
