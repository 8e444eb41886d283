package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"maturity-hq/steward/pkg/api/handlers"
	"maturity-hq/steward/pkg/api/middleware"
	"maturity-hq/steward/pkg/api/types"
	"maturity-hq/steward/pkg/security/auth"
	"maturity-hq/steward/pkg/telemetry/health"
	"maturity-hq/steward/pkg/telemetry/metrics"
	"maturity-hq/steward/pkg/telemetry/tracing"
)

// Routes collects what NewRouter mounts. Nil optional fields leave the
// corresponding feature out.
type Routes struct {
	API     *handlers.Handler
	Health  *health.Checker
	Version health.VersionInfo

	// Metrics is mounted at MetricsPath when set.
	Metrics     *metrics.Collector
	MetricsPath string

	Tracer *tracing.Tracer

	// APIKeys enables API key authentication of /v1 when set.
	APIKeys auth.APIKeyStore

	MaxBodyBytes int64
}

// NewRouter builds the HTTP handler. Probes and metrics are served
// without authentication; /v1 requires an API key when APIKeys is set.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RecoveryMiddleware, middleware.RequestIDMiddleware)
	if rt.Tracer != nil {
		r.Use(tracing.HTTPMiddleware(rt.Tracer))
	}
	r.Use(middleware.LoggingMiddleware(nil))
	if rt.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(rt.Metrics))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		types.WriteError(w, types.NewErrorResponse(types.ErrorTypeNotFound, "no such endpoint", ""))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		types.WriteError(w, types.NewErrorResponse(types.ErrorTypeMethodNotAllowed, "method not allowed", ""))
	})

	if rt.Health != nil {
		r.Get("/health", rt.Health.LivenessHandler())
		r.Get("/ready", rt.Health.ReadinessHandler())
	}
	r.Get("/version", health.VersionHandler(rt.Version))
	if rt.Metrics != nil {
		path := rt.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, rt.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if rt.APIKeys != nil {
			r.Use(auth.NewAPIKeyMiddleware(rt.APIKeys, auth.DefaultSources()).Handle)
		}
		r.Use(middleware.ActorMiddleware, middleware.MaxBodyBytesMiddleware(rt.MaxBodyBytes))
		if rt.API != nil {
			rt.API.Routes(r)
		}
	})
	return r
}
