package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// APIKeySource defines where to extract API keys from.
type APIKeySource struct {
	Type   string // header, query
	Name   string // header name or query parameter
	Scheme string // optional, e.g. "Bearer"
}

// DefaultSources reads a bearer token from Authorization, then X-API-Key.
func DefaultSources() []APIKeySource {
	return []APIKeySource{
		{Type: "header", Name: "Authorization", Scheme: "Bearer"},
		{Type: "header", Name: "X-API-Key"},
	}
}

// APIKeyMiddleware authenticates requests by API key.
type APIKeyMiddleware struct {
	validator APIKeyStore
	sources   []APIKeySource
	logger    *slog.Logger
}

// NewAPIKeyMiddleware creates the middleware.
func NewAPIKeyMiddleware(validator APIKeyStore, sources []APIKeySource) *APIKeyMiddleware {
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	return &APIKeyMiddleware{
		validator: validator,
		sources:   sources,
		logger:    slog.Default().With("component", "auth"),
	}
}

// Handle rejects requests without a valid key with 401 and stores the
// key's info in the request context otherwise.
func (m *APIKeyMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := m.extractAPIKey(r)
		if err == nil {
			var info *APIKeyInfo
			if info, err = m.validator.Validate(apiKey); err == nil {
				next.ServeHTTP(w, r.WithContext(WithAPIKeyInfo(r.Context(), info)))
				return
			}
		}

		m.logger.Warn("request not authenticated",
			"error", err,
			"remote_addr", r.RemoteAddr,
			"path", r.URL.Path,
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized","message":"missing or invalid API key"}`))
	})
}

var errNoKey = errors.New("no API key found")

func (m *APIKeyMiddleware) extractAPIKey(r *http.Request) (string, error) {
	for _, source := range m.sources {
		var value string
		switch source.Type {
		case "header":
			value = r.Header.Get(source.Name)
			if value != "" && source.Scheme != "" {
				var ok bool
				if value, ok = strings.CutPrefix(value, source.Scheme+" "); !ok {
					continue
				}
			}
		case "query":
			value = r.URL.Query().Get(source.Name)
		}
		if value != "" {
			return value, nil
		}
	}
	return "", errNoKey
}

type contextKey string

// #nosec G101 - context key, not a credential
const apiKeyInfoKey contextKey = "api_key_info"

// WithAPIKeyInfo returns a context carrying info.
func WithAPIKeyInfo(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, apiKeyInfoKey, info)
}

// GetAPIKeyInfo returns the authenticated key's info, if any.
func GetAPIKeyInfo(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyInfoKey).(*APIKeyInfo)
	return info, ok
}
