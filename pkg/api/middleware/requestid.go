package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"maturity-hq/steward/pkg/telemetry/logging"
)

const (
	// RequestIDHeader is the HTTP header for request ID.
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLength = 128
)

// RequestIDMiddleware propagates the client's X-Request-ID, or a new UUID
// when the client sent none or an unusable one. The id is stored in the
// request context, where the logger picks it up, and echoed in the
// response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

// validRequestID accepts short printable ASCII ids so a client cannot
// inject log lines or oversized headers.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
