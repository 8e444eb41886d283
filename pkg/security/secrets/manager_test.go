package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type staticProvider struct {
	name    string
	secrets map[string]string
	calls   int
}

func (p *staticProvider) GetSecret(ctx context.Context, name string) (string, error) {
	p.calls++
	v, ok := p.secrets[name]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (p *staticProvider) ListSecrets(ctx context.Context) ([]string, error) {
	var names []string
	for k := range p.secrets {
		names = append(names, k)
	}
	return names, nil
}

func (p *staticProvider) Provider() string       { return p.name }
func (p *staticProvider) Supports(n string) bool { return true }

func TestManager_GetSecret(t *testing.T) {
	first := &staticProvider{name: "first", secrets: map[string]string{"shared": "from-first"}}
	second := &staticProvider{name: "second", secrets: map[string]string{"shared": "from-second", "only-second": "x"}}
	m := NewManager([]SecretProvider{first, second}, CacheConfig{Enabled: true, TTL: time.Minute})
	ctx := context.Background()

	if v, _ := m.GetSecret(ctx, "shared"); v != "from-first" {
		t.Errorf("Expected first provider to win, got %q", v)
	}
	if v, _ := m.GetSecret(ctx, "only-second"); v != "x" {
		t.Errorf("Expected fallback to second provider, got %q", v)
	}
	calls := first.calls
	if _, err := m.GetSecret(ctx, "shared"); err != nil || first.calls != calls {
		t.Errorf("Expected cached lookup, provider called %d times", first.calls-calls)
	}
	if _, err := m.GetSecret(ctx, "missing"); err == nil {
		t.Error("Expected error for missing secret")
	}

	names, _ := m.ListSecrets(ctx)
	if strings.Join(names, ",") != "only-second,shared" {
		t.Errorf("ListSecrets() = %v", names)
	}
}

func TestManager_ResolveReferences(t *testing.T) {
	p := &staticProvider{name: "static", secrets: map[string]string{"redis-password": "hunter2"}}
	m := NewManager([]SecretProvider{p}, CacheConfig{})
	ctx := context.Background()

	out, err := m.ResolveReferences(ctx, "redis://:${secret:redis-password}@cache:6379")
	if err != nil || out != "redis://:hunter2@cache:6379" {
		t.Errorf("ResolveReferences() = %q, %v", out, err)
	}

	out, err = m.ResolveReferences(ctx, "key=${secret:missing}")
	if err == nil || out != "key=${secret:missing}" {
		t.Errorf("Expected unresolved reference kept with error, got %q, %v", out, err)
	}
}

func TestRedactSecretName(t *testing.T) {
	if got := redactSecretName("audit-hmac-key"); got != "au...ey" {
		t.Errorf("redactSecretName() = %q", got)
	}
	if got := redactSecretName("key"); got != "***" {
		t.Errorf("redactSecretName() = %q", got)
	}
}
