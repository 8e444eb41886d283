package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
)

// secretRefRegex matches ${secret:name} references in configuration values.
var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets through an ordered list of providers, caching
// what it finds.
type Manager struct {
	providers []SecretProvider
	cache     *Cache
	logger    *slog.Logger
}

// NewManager creates a manager. Providers are tried in order.
func NewManager(providers []SecretProvider, cacheConfig CacheConfig) *Manager {
	m := &Manager{
		providers: providers,
		cache:     NewCache(cacheConfig),
		logger:    slog.Default().With("component", "secrets.manager"),
	}
	for _, p := range providers {
		if fp, ok := p.(*FileProvider); ok {
			fp.OnChange(func(string) { m.cache.Clear() })
		}
	}
	return m
}

// GetSecret returns the value from the first provider that has it.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	var lastErr error
	for _, provider := range m.providers {
		if !provider.Supports(name) {
			continue
		}
		value, err := provider.GetSecret(ctx, name)
		if err != nil {
			lastErr = err
			m.logger.Debug("provider failed to get secret",
				"provider", provider.Provider(),
				"name", redactSecretName(name),
				"error", err,
			)
			continue
		}
		m.cache.Set(name, value)
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("secret not found: %q (no provider supports this secret)", name)
}

// ResolveReferences replaces ${secret:name} references in input. References
// that cannot be resolved are left in place and reported in the error.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var failures []string
	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefRegex.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%q: %v", name, err))
			return match
		}
		return value
	})
	if len(failures) > 0 {
		return output, fmt.Errorf("failed to resolve secret references: %s", strings.Join(failures, "; "))
	}
	return output, nil
}

// Refresh reloads refreshable providers and clears the cache.
func (m *Manager) Refresh(ctx context.Context) error {
	var failures []string
	for _, provider := range m.providers {
		refreshable, ok := provider.(RefreshableProvider)
		if !ok {
			continue
		}
		if err := refreshable.Refresh(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", provider.Provider(), err))
		}
	}
	m.cache.Clear()

	if len(failures) > 0 {
		return fmt.Errorf("failed to refresh some providers: %s", strings.Join(failures, "; "))
	}
	return nil
}

// ListSecrets returns the sorted union of secret names across providers.
func (m *Manager) ListSecrets(ctx context.Context) ([]string, error) {
	var names []string
	for _, provider := range m.providers {
		secrets, err := provider.ListSecrets(ctx)
		if err != nil {
			m.logger.Warn("failed to list secrets", "provider", provider.Provider(), "error", err)
			continue
		}
		names = append(names, secrets...)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// redactSecretName keeps the first and last two characters of a name.
func redactSecretName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
