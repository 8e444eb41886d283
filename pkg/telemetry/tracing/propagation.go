package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Propagator returns the configured text map propagator.
// This is typically a composite propagator that handles both
// W3C Trace Context and W3C Baggage.
func Propagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}

// Extract extracts trace context from HTTP headers and returns a context
// with the extracted trace context.
//
// This should be called on the server side when receiving an HTTP request:
//
//	ctx := tracing.Extract(r.Context(), r.Header)
//	ctx, span := tracer.Start(ctx, "handle_request")
//	defer span.End()
//
// If no trace context is found in the headers, the original context is returned.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return Propagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// HTTPMiddleware extracts the caller's trace context and starts a server
// span for each request. The trace ID is echoed in X-Trace-ID.
//
//	router.Use(tracing.HTTPMiddleware(tracer))
func HTTPMiddleware(tracer *Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := Extract(r.Context(), r.Header)
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			if sc := span.SpanContext(); sc.IsValid() {
				w.Header().Set("X-Trace-ID", sc.TraceID().String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
