package config

import (
	"time"

	"maturity-hq/steward/pkg/governance"
)

const day = 24 * time.Hour

// Overrides returns the configured policies as registry overrides.
// Policies default to enabled except primary business data; ttl_days takes
// precedence over ttl.
func (c RetentionConfig) Overrides() []governance.RetentionPolicy {
	out := make([]governance.RetentionPolicy, 0, len(c.Policies))
	for _, p := range c.Policies {
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
	return out
}

// JobTimeouts returns the per-type execution limits keyed by job type.
func (c JobsConfig) JobTimeouts() map[governance.JobType]time.Duration {
	out := make(map[governance.JobType]time.Duration, len(c.Timeouts))
	for name, d := range c.Timeouts {
		out[governance.JobType(name)] = d
	}
	return out
}
