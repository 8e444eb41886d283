package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKeyValidator(t *testing.T) {
	v := NewAPIKeyValidator([]*APIKeyInfo{
		{Key: "sk-ops", Actor: "ops", Admin: true, Enabled: true},
		{Key: "sk-old", Actor: "old", Enabled: false},
	})

	info, err := v.Validate("sk-ops")
	if err != nil || info.Actor != "ops" || !info.Admin {
		t.Errorf("Validate() = %+v, %v", info, err)
	}
	if _, err := v.Validate("sk-old"); !errors.Is(err, ErrKeyDisabled) {
		t.Errorf("Expected disabled key, got %v", err)
	}
	if _, err := v.Validate("sk-none"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected invalid key, got %v", err)
	}

	v.Replace([]*APIKeyInfo{{Key: "sk-new", Actor: "new", Enabled: true}})
	if _, err := v.Validate("sk-ops"); err == nil {
		t.Error("Expected replaced key to be gone")
	}
	if len(v.List()) != 1 {
		t.Errorf("Expected 1 key, got %d", len(v.List()))
	}
}

func TestAPIKeyMiddleware_Handle(t *testing.T) {
	v := NewAPIKeyValidator([]*APIKeyInfo{{Key: "sk-ops", Actor: "ops", Enabled: true}})
	mw := NewAPIKeyMiddleware(v, nil)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"bearer", "Authorization", "Bearer sk-ops", http.StatusOK},
		{"x-api-key", "X-API-Key", "sk-ops", http.StatusOK},
		{"wrong scheme", "Authorization", "Basic sk-ops", http.StatusUnauthorized},
		{"unknown key", "X-API-Key", "sk-nope", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var actor string
			handler := mw.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if info, ok := GetAPIKeyInfo(r.Context()); ok {
					actor = info.Actor
				}
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK && actor != "ops" {
				t.Errorf("Expected actor ops in context, got %q", actor)
			}
		})
	}
}
