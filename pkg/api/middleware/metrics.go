package middleware

import (
	"net/http"
	"time"
)

// RequestRecorder receives one observation per completed request.
type RequestRecorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// MetricsMiddleware reports every request to rec labelled by its route
// pattern. It must be installed on the chi router so the pattern is known
// once the request has been served.
func MetricsMiddleware(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)
			rec.RecordHTTPRequest(r.Method, routePattern(r), rw.statusCode, time.Since(start))
		})
	}
}
