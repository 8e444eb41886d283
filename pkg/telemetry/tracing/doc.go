// Package tracing provides OpenTelemetry distributed tracing for Steward.
//
// When enabled, New installs an SDK tracer provider exporting over OTLP
// gRPC as the global provider, so the job pool and the export and purge
// handlers, which call otel.Tracer directly, report into it. When disabled
// every span is a noop.
//
// # Sampling
//
//   - always: sample every trace
//   - never: sample nothing
//   - ratio: sample sample_ratio of root spans by trace ID
//
// All samplers honor the parent's decision.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithServiceVersion(version))
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	router.Use(tracing.HTTPMiddleware(tracer))
//
// Spans carry identifiers only (job, engagement and correlation IDs). Job
// payloads and record contents are never attached.
package tracing
