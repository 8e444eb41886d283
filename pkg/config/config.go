package config

import "time"

// Config is the root configuration structure for Steward.
// It contains every section needed to run the governance service: the HTTP
// server, storage backends, the job worker pool, confirmation gate,
// retention policies, export sinks, audit keys, secrets and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and request size limits.
	Server ServerConfig `yaml:"server"`

	// Storage selects the governance (jobs + audit) and business data
	// backends.
	Storage StorageConfig `yaml:"storage"`

	// Jobs configures the worker pool and reaper.
	Jobs JobsConfig `yaml:"jobs"`

	// Gate configures purge confirmation challenges.
	Gate GateConfig `yaml:"gate"`

	// Retention contains the sweep schedule and per-category policy
	// overrides.
	Retention RetentionConfig `yaml:"retention"`

	// Export selects where export bundles are written.
	Export ExportConfig `yaml:"export"`

	// Audit names the HMAC keys used to tag audit events.
	Audit AuditConfig `yaml:"audit"`

	// Secrets configures where secret values are resolved from.
	Secrets SecretsConfig `yaml:"secrets"`

	// Auth configures optional API key authentication of the HTTP API.
	Auth AuthConfig `yaml:"auth"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight HTTP
	// requests during graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the size of JSON request bodies.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// StorageConfig contains the storage backend configuration.
type StorageConfig struct {
	// Governance holds job records and audit events.
	Governance GovernanceStorageConfig `yaml:"governance"`

	// Business is the reference business data store the handlers read from
	// and purge.
	Business BusinessStorageConfig `yaml:"business"`
}

// GovernanceStorageConfig configures the job and audit stores.
type GovernanceStorageConfig struct {
	// Backend is "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/governance.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 1
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 1
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging. Nil means enabled.
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// WALEnabled reports whether WAL mode is enabled.
func (c SQLiteConfig) WALEnabled() bool {
	return c.WALMode == nil || *c.WALMode
}

// BusinessStorageConfig configures the business data store.
type BusinessStorageConfig struct {
	// Backend is "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	// Default: "data/business.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait for a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// JobsConfig configures the background worker pool.
type JobsConfig struct {
	// Workers is the number of concurrent workers.
	// Default: 4
	Workers int `yaml:"workers"`

	// PollInterval is how often an idle worker polls for pending jobs.
	// Default: 1s
	PollInterval time.Duration `yaml:"poll_interval"`

	// RetryBackoff is the base delay before a requeued job is claimable.
	// Default: 5s
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// MaxBackoff caps the exponential retry delay.
	// Default: 5m
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxRetries is how many times a job may be requeued before it fails.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// ReaperInterval is how often stuck processing jobs are checked.
	// Default: 1m
	ReaperInterval time.Duration `yaml:"reaper_interval"`

	// ShutdownTimeout bounds how long shutdown waits for running jobs.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Timeouts overrides the maximum execution time per job type
	// (export, purge, ttl_cleanup, audit_retention).
	Timeouts map[string]time.Duration `yaml:"timeouts"`
}

// GateConfig configures purge confirmation challenges.
type GateConfig struct {
	// Backend is "memory" or "redis". Redis shares challenges between
	// replicas.
	// Default: "memory"
	Backend string `yaml:"backend"`

	// TokenLength is the number of characters in a challenge.
	// Default: 8
	TokenLength int `yaml:"token_length"`

	// ChallengeTTL is how long a challenge stays valid.
	// Default: 15m
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	// Address is the "host:port" of the Redis server.
	// Default: "127.0.0.1:6379"
	Address string `yaml:"address"`

	// Password may be a ${secret:name} reference.
	Password string `yaml:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db"`

	// Prefix is prepended to every challenge key.
	// Default: "steward:challenge:"
	Prefix string `yaml:"prefix"`
}

// RetentionConfig configures TTL sweeps.
type RetentionConfig struct {
	// Schedule is a cron expression or descriptor. "off" disables the
	// scheduler; sweeps can still be submitted as ttl_cleanup jobs.
	// Default: "@every 1h"
	Schedule string `yaml:"schedule"`

	// BatchSize is the number of records deleted per batch.
	// Default: 500
	BatchSize int `yaml:"batch_size"`

	// PolicyFile is an optional YAML file of policy overrides.
	PolicyFile string `yaml:"policy_file"`

	// Watch reloads PolicyFile when it changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// WatchDebounce coalesces bursts of file events.
	// Default: 500ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// Policies overrides the built-in category policies.
	Policies []RetentionPolicyConfig `yaml:"policies"`
}

// ScheduleOff disables the retention scheduler.
const ScheduleOff = "off"

// CronSchedule returns the schedule to run, or "" when disabled.
func (c RetentionConfig) CronSchedule() string {
	if c.Schedule == ScheduleOff {
		return ""
	}
	return c.Schedule
}

// RetentionPolicyConfig overrides one category policy.
type RetentionPolicyConfig struct {
	Category string        `yaml:"category"`
	TTL      time.Duration `yaml:"ttl"`
	TTLDays  int           `yaml:"ttl_days"`
	Enabled  *bool         `yaml:"enabled"`
}

// ExportConfig configures where export bundles are written.
type ExportConfig struct {
	// Sink is "filesystem" or "s3".
	// Default: "filesystem"
	Sink string `yaml:"sink"`

	// Filesystem configures the filesystem sink.
	Filesystem FilesystemSinkConfig `yaml:"filesystem"`

	// S3 configures the S3 sink.
	S3 S3Config `yaml:"s3"`
}

// FilesystemSinkConfig configures the filesystem sink.
type FilesystemSinkConfig struct {
	// Root is the directory artifacts are written under.
	// Default: "data/artifacts"
	Root string `yaml:"root"`
}

// S3Config configures an S3 or S3-compatible bucket.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`

	// Endpoint is set for S3-compatible services.
	Endpoint string `yaml:"endpoint"`
	Prefix   string `yaml:"prefix"`

	// AccessKeyID and SecretAccessKey may be ${secret:name} references.
	// When empty the default AWS credential chain is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// AuditConfig names the HMAC keys of the audit trail.
type AuditConfig struct {
	// Key is the current signing key.
	Key AuditKeyConfig `yaml:"key"`

	// Historical keys still verify older events after rotation.
	Historical []AuditKeyConfig `yaml:"historical"`

	// VerifyBatchSize is the page size used when verifying ranges.
	// Default: 1000
	VerifyBatchSize int `yaml:"verify_batch_size"`
}

// AuditKeyConfig references one HMAC key.
type AuditKeyConfig struct {
	// ID is recorded on every event tagged with this key.
	ID string `yaml:"id"`

	// Secret is the secret name the key material is resolved from.
	Secret string `yaml:"secret"`
}

// SecretsConfig configures secret providers.
type SecretsConfig struct {
	// EnvPrefix is the prefix of secret environment variables.
	// Default: "STEWARD_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir is an optional directory of secret files.
	Dir string `yaml:"dir"`

	// Watch reloads secret files when they change.
	Watch bool `yaml:"watch"`

	// Cache configures the resolved-secret cache.
	Cache SecretsCacheConfig `yaml:"cache"`
}

// SecretsCacheConfig configures the secret cache.
type SecretsCacheConfig struct {
	// Enabled turns caching on.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// TTL is how long a resolved secret is cached.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// MaxSize bounds the number of cached secrets. Zero is unbounded.
	// Default: 100
	MaxSize int `yaml:"max_size"`
}

// IsEnabled reports whether the cache is enabled.
func (c SecretsCacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	// Enabled requires a valid API key on every /v1 request. The key's
	// actor replaces the X-Actor header.
	Enabled bool `yaml:"enabled"`

	// APIKeys lists the accepted keys.
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig describes one API key.
type APIKeyConfig struct {
	// Key may be a ${secret:name} reference.
	Key     string `yaml:"key"`
	Actor   string `yaml:"actor"`
	Admin   bool   `yaml:"admin"`
	Enabled *bool  `yaml:"enabled"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Health  HealthConfig  `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json", "text" or "console".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactPII scrubs emails, tokens and addresses from log output.
	// Default: true
	RedactPII *bool `yaml:"redact_pii"`

	// RedactPatterns adds custom redaction patterns.
	RedactPatterns []RedactPatternConfig `yaml:"redact_patterns"`
}

// RedactEnabled reports whether PII redaction is enabled.
func (c LoggingConfig) RedactEnabled() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// RedactPatternConfig is a custom log redaction pattern.
type RedactPatternConfig struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "steward"
	Namespace string `yaml:"namespace"`

	// Subsystem is inserted between namespace and metric name.
	Subsystem string `yaml:"subsystem"`

	// DurationBuckets are the histogram buckets of job and sweep
	// durations, in seconds.
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// IsEnabled reports whether metrics are enabled.
func (c MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled turns tracing on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled by the ratio sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "steward"
	ServiceName string `yaml:"service_name"`

	// Timeout bounds exporter connection and export calls.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	// Default: 2s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
