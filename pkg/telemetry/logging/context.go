package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	requestIDKey     contextKey = "request_id"
	actorKey         contextKey = "actor"
	correlationIDKey contextKey = "correlation_id"
)

// WithRequestID adds a request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request id, or "".
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithActor adds the acting identity to the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor returns the acting identity, or "".
func GetActor(ctx context.Context) string {
	v, _ := ctx.Value(actorKey).(string)
	return v
}

// WithCorrelationID adds a governance correlation id to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID returns the correlation id, or "".
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := GetRequestID(ctx); v != "" {
		attrs = append(attrs, slog.String("request_id", v))
	}
	if v := GetActor(ctx); v != "" {
		attrs = append(attrs, slog.String("actor", v))
	}
	if v := GetCorrelationID(ctx); v != "" {
		attrs = append(attrs, slog.String("correlation_id", v))
	}
	return attrs
}
