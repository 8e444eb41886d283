// Package telemetry groups Steward's observability packages.
//
//   - logging: structured slog logging with PII redaction
//   - metrics: Prometheus metrics for jobs, sweeps, audit integrity and the API
//   - tracing: OpenTelemetry tracing exported over OTLP gRPC
//   - health: liveness and readiness endpoints
package telemetry
