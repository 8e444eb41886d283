package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix namespaces secrets read from the environment.
const DefaultEnvPrefix = "STEWARD_SECRET_"

// EnvProvider loads secrets from environment variables.
//
// Secret names are upper-cased with hyphens replaced by underscores and the
// prefix prepended, so "audit-hmac-key" is read from
// STEWARD_SECRET_AUDIT_HMAC_KEY.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an environment secret provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret reads the secret's environment variable. An empty variable is
// treated as unset.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := p.secretNameToEnvVar(name)
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("secret not found in environment: %s (env var: %s)", name, envVar)
	}
	return value, nil
}

// ListSecrets returns the names of the prefixed environment variables.
func (p *EnvProvider) ListSecrets(ctx context.Context) ([]string, error) {
	var secrets []string
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, p.Prefix) {
			continue
		}
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		secrets = append(secrets, p.envVarToSecretName(name))
	}
	return secrets, nil
}

// Provider returns "env".
func (p *EnvProvider) Provider() string {
	return "env"
}

// Supports always returns true so the environment acts as the fallback.
func (p *EnvProvider) Supports(name string) bool {
	return true
}

func (p *EnvProvider) secretNameToEnvVar(name string) string {
	return p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func (p *EnvProvider) envVarToSecretName(envVar string) string {
	name := strings.TrimPrefix(envVar, p.Prefix)
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}
