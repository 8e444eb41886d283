package logging

import (
	"context"
	"log/slog"
)

// redactHandler scrubs attribute values before they reach the wrapped
// handler.
type redactHandler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewRedactHandler wraps next so string values matching a redaction pattern,
// and any value under a sensitive key, are scrubbed.
func NewRedactHandler(next slog.Handler, r *Redactor) slog.Handler {
	return &redactHandler{next: next, redactor: r}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.redactor.RedactString(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &redactHandler{next: h.next.WithAttrs(redacted), redactor: h.redactor}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}

func (h *redactHandler) redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch {
	case v.Kind() == slog.KindGroup:
		group := v.Group()
		out := make([]any, len(group))
		for i, ga := range group {
			out[i] = h.redactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	case IsSensitiveKey(a.Key):
		return slog.String(a.Key, "***")
	case v.Kind() == slog.KindString:
		return slog.String(a.Key, h.redactor.RedactString(v.String()))
	case v.Kind() == slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.redactor.RedactString(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// contextHandler adds request-scoped fields stored in the context.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if ctx != nil {
		rec.AddAttrs(contextAttrs(ctx)...)
	}
	return h.next.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
