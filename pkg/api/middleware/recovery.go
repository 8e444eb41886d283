package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"maturity-hq/steward/pkg/api/types"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and returns a
// 500 response. The panic and stack are logged; the client only sees a
// generic message. http.ErrAbortHandler is re-raised so net/http aborts
// the connection as intended.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"component", "api",
				"error", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			types.WriteError(w, types.NewErrorResponse(types.ErrorTypeServerError,
				"An internal error occurred. Please try again later.", ""))
		}()

		next.ServeHTTP(w, r)
	})
}
