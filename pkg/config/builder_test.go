package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a ConfigBuilder with in-memory storage so the result
// is valid without touching disk.
func NewTestConfig() *ConfigBuilder {
	cfg := Config{}
	ApplyDefaults(&cfg)
	cfg.Storage.Governance.Backend = "memory"
	cfg.Storage.Business.Backend = "memory"
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithWorkers sets the worker pool size.
func (b *ConfigBuilder) WithWorkers(n int) *ConfigBuilder {
	b.cfg.Jobs.Workers = n
	return b
}

// WithGateBackend sets the challenge store backend.
func (b *ConfigBuilder) WithGateBackend(backend string) *ConfigBuilder {
	b.cfg.Gate.Backend = backend
	return b
}

// WithSchedule sets the retention schedule.
func (b *ConfigBuilder) WithSchedule(schedule string) *ConfigBuilder {
	b.cfg.Retention.Schedule = schedule
	return b
}

// WithPolicy adds a retention policy override.
func (b *ConfigBuilder) WithPolicy(category string, ttl time.Duration, enabled bool) *ConfigBuilder {
	b.cfg.Retention.Policies = append(b.cfg.Retention.Policies, RetentionPolicyConfig{
		Category: category,
		TTL:      ttl,
		Enabled:  &enabled,
	})
	return b
}

// WithS3Sink selects the S3 export sink.
func (b *ConfigBuilder) WithS3Sink(bucket, region string) *ConfigBuilder {
	b.cfg.Export.Sink = "s3"
	b.cfg.Export.S3.Bucket = bucket
	b.cfg.Export.S3.Region = region
	return b
}

// WithAPIKey enables auth with one key.
func (b *ConfigBuilder) WithAPIKey(key, actor string, admin bool) *ConfigBuilder {
	b.cfg.Auth.Enabled = true
	b.cfg.Auth.APIKeys = append(b.cfg.Auth.APIKeys, APIKeyConfig{Key: key, Actor: actor, Admin: admin})
	return b
}

// WithTracing enables tracing with the ratio sampler.
func (b *ConfigBuilder) WithTracing(endpoint string, ratio float64) *ConfigBuilder {
	b.cfg.Telemetry.Tracing.Enabled = true
	b.cfg.Telemetry.Tracing.Endpoint = endpoint
	b.cfg.Telemetry.Tracing.SampleRatio = ratio
	return b
}
