package middleware

import (
	"net/http"
	"strings"

	"maturity-hq/steward/pkg/security/auth"
	"maturity-hq/steward/pkg/telemetry/logging"
	"maturity-hq/steward/pkg/telemetry/tracing"
)

const (
	// ActorHeader names the acting user when API keys are not in use.
	ActorHeader = "X-Actor"

	// AnonymousActor is recorded when no actor is supplied.
	AnonymousActor = "anonymous"

	maxActorLength = 128
)

// ActorMiddleware establishes the request's Identity. An API key
// authenticated upstream determines both actor and admin rights. Without
// one, X-Actor is trusted for attribution only and never grants admin.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{Actor: AnonymousActor}
		if info, ok := auth.GetAPIKeyInfo(r.Context()); ok && info != nil {
			id = Identity{Actor: info.Actor, Admin: info.Admin}
		} else if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" && len(actor) <= maxActorLength {
			id.Actor = actor
		}

		ctx := WithIdentity(r.Context(), id)
		ctx = logging.WithActor(ctx, id.Actor)
		tracing.SetRequestAttributes(tracing.SpanFromContext(ctx), logging.GetRequestID(ctx), id.Actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
