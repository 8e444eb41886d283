package retention

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"maturity-hq/steward/pkg/governance"
)

const day = 24 * time.Hour

// DefaultPolicies returns the built-in retention policies.
func DefaultPolicies() []governance.RetentionPolicy {
	return []governance.RetentionPolicy{
		{Category: governance.CategoryOperationalLogs, TTL: 90 * day, Enabled: true},
		{Category: governance.CategoryTempData, TTL: 24 * time.Hour, Enabled: true},
		{Category: governance.CategoryExportArtifacts, TTL: 7 * day, Enabled: true},
		{Category: governance.CategoryJobRecords, TTL: 365 * day, Enabled: true},
		{Category: governance.CategoryAuditLogs, TTL: 2555 * day, Enabled: true},
		{Category: governance.CategoryEngagements},
		{Category: governance.CategoryAssessments},
		{Category: governance.CategoryDocuments},
		{Category: governance.CategoryFindings},
	}
}

// ValidatePolicy checks a policy.
func ValidatePolicy(p governance.RetentionPolicy) error {
	if p.Category == "" {
		return governance.NewValidationError("category", "category is required")
	}
	if p.TTL < 0 {
		return governance.NewValidationError("ttl", fmt.Sprintf("ttl of %s cannot be negative", p.Category))
	}
	if governance.IsPrimaryBusinessData(p.Category) && p.Enabled {
		return governance.NewValidationError("enabled",
			fmt.Sprintf("%s is primary business data and cannot be swept by TTL", p.Category))
	}
	return nil
}

// Registry holds the current retention policy of every category. It is
// safe for concurrent use; readers always see a complete policy set.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]governance.RetentionPolicy
	logger   *slog.Logger
}

// NewRegistry creates a registry from the defaults with overrides applied.
func NewRegistry(overrides ...governance.RetentionPolicy) (*Registry, error) {
	r := &Registry{logger: slog.Default().With("component", "retention.registry")}
	policies, err := buildPolicies(overrides)
	if err != nil {
		return nil, err
	}
	r.policies = policies
	return r, nil
}

func buildPolicies(overrides []governance.RetentionPolicy) (map[string]governance.RetentionPolicy, error) {
	policies := make(map[string]governance.RetentionPolicy)
	for _, p := range DefaultPolicies() {
		policies[p.Category] = p
	}
	for _, p := range overrides {
		if err := ValidatePolicy(p); err != nil {
			return nil, err
		}
		if governance.IsPrimaryBusinessData(p.Category) {
			continue
		}
		policies[p.Category] = p
	}
	return policies, nil
}

// Get returns the policy of a category.
func (r *Registry) Get(category string) (governance.RetentionPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[category]
	return p, ok
}

// Policies returns every policy, ordered by category.
func (r *Registry) Policies() []governance.RetentionPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]governance.RetentionPolicy, 0, len(r.policies))
	for _, c := range slices.Sorted(maps.Keys(r.policies)) {
		out = append(out, r.policies[c])
	}
	return out
}

// Set replaces the policy of one category. Primary business data
// categories cannot be changed.
func (r *Registry) Set(p governance.RetentionPolicy) error {
	if governance.IsPrimaryBusinessData(p.Category) {
		return governance.NewValidationError("category",
			fmt.Sprintf("%s is primary business data; its policy is fixed", p.Category))
	}
	if err := ValidatePolicy(p); err != nil {
		return err
	}
	r.mu.Lock()
	r.policies[p.Category] = p
	r.mu.Unlock()
	r.logger.Info("retention policy updated",
		"category", p.Category,
		"ttl", p.TTL,
		"enabled", p.Enabled,
	)
	return nil
}

// Replace swaps the whole policy set for the defaults plus overrides. The
// swap is all or nothing.
func (r *Registry) Replace(overrides []governance.RetentionPolicy) error {
	policies, err := buildPolicies(overrides)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.policies = policies
	r.mu.Unlock()
	return nil
}

// policyFile is the YAML layout of a policy override file.
type policyFile struct {
	Policies []struct {
		Category string        `yaml:"category"`
		TTL      time.Duration `yaml:"ttl"`
		TTLDays  int           `yaml:"ttl_days"`
		Enabled  *bool         `yaml:"enabled"`
	} `yaml:"policies"`
}

// ParsePolicyFile decodes a YAML policy override file. A policy without an
// enabled key is enabled, except for primary business data which stays
// disabled unless the file explicitly enables it.
func ParsePolicyFile(data []byte) ([]governance.RetentionPolicy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	out := make([]governance.RetentionPolicy, 0, len(f.Policies))
	for _, p := range f.Policies {
		policy := governance.RetentionPolicy{
			Category: p.Category,
			TTL:      p.TTL,
			Enabled:  !governance.IsPrimaryBusinessData(p.Category),
		}
		if p.TTLDays != 0 {
			policy.TTL = time.Duration(p.TTLDays) * day
		}
		if p.Enabled != nil {
			policy.Enabled = *p.Enabled
		}
		out = append(out, policy)
	}
	return out, nil
}

// LoadFile replaces the policy set with the defaults plus the overrides in
// path. On error the current policies are kept.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}
	overrides, err := ParsePolicyFile(data)
	if err != nil {
		return err
	}
	if err := r.Replace(overrides); err != nil {
		return fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	r.logger.Info("retention policies loaded", "path", path, "overrides", len(overrides))
	return nil
}
