package middleware

import "context"

type contextKey string

const identityKey contextKey = "identity"

// Identity is the caller a request acts as.
type Identity struct {
	Actor string
	Admin bool
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the request's identity. Requests that did not pass
// through ActorMiddleware act as an anonymous non-admin.
func GetIdentity(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Identity{Actor: AnonymousActor}
}
