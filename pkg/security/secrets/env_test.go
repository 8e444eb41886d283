package secrets

import (
	"context"
	"slices"
	"testing"
)

func TestEnvProvider_SecretNameConversion(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		secret string
		envVar string
	}{
		{"hyphenated", DefaultEnvPrefix, "audit-hmac-key", "STEWARD_SECRET_AUDIT_HMAC_KEY"},
		{"already upper", DefaultEnvPrefix, "REDIS_PASSWORD", "STEWARD_SECRET_REDIS_PASSWORD"},
		{"no prefix", "", "s3-secret-key", "S3_SECRET_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewEnvProvider(tt.prefix)
			if got := p.secretNameToEnvVar(tt.secret); got != tt.envVar {
				t.Errorf("secretNameToEnvVar(%q) = %q, want %q", tt.secret, got, tt.envVar)
			}
		})
	}
}

func TestEnvProvider_GetSecret(t *testing.T) {
	t.Setenv("STEWARD_SECRET_AUDIT_HMAC_KEY", "from-env")
	t.Setenv("STEWARD_SECRET_EMPTY", "")
	p := NewEnvProvider(DefaultEnvPrefix)
	ctx := context.Background()

	value, err := p.GetSecret(ctx, "audit-hmac-key")
	if err != nil || value != "from-env" {
		t.Errorf("GetSecret() = %q, %v", value, err)
	}
	if _, err := p.GetSecret(ctx, "empty"); err == nil {
		t.Error("Expected an empty variable to count as missing")
	}
	if _, err := p.GetSecret(ctx, "missing"); err == nil {
		t.Error("Expected error for missing secret")
	}

	names, _ := p.ListSecrets(ctx)
	if !slices.Contains(names, "audit-hmac-key") {
		t.Errorf("Expected audit-hmac-key in %v", names)
	}
	if !p.Supports("anything") || p.Provider() != "env" {
		t.Error("Expected env provider to support every name")
	}
}
