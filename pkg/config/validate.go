package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"maturity-hq/steward/pkg/governance"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateJobs(&cfg.Jobs)...)
	errs = append(errs, validateGate(&cfg.Gate)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateExport(&cfg.Export)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateSecrets(&cfg.Secrets)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: fmt.Sprintf("invalid host:port: %v", err)})
	}

	errs = append(errs, nonNegative("server.read_timeout", cfg.ReadTimeout)...)
	errs = append(errs, nonNegative("server.write_timeout", cfg.WriteTimeout)...)
	errs = append(errs, nonNegative("server.idle_timeout", cfg.IdleTimeout)...)
	errs = append(errs, nonNegative("server.shutdown_timeout", cfg.ShutdownTimeout)...)

	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must be between 0 and 10MB"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must be non-negative"})
	}
	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Governance.Backend {
	case "sqlite":
		if cfg.Governance.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.governance.sqlite.path", Message: "path is required for the sqlite backend"})
		}
		if cfg.Governance.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "storage.governance.sqlite.max_open_conns", Message: "must be at least 1"})
		}
		if cfg.Governance.SQLite.MaxIdleConns > cfg.Governance.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{Field: "storage.governance.sqlite.max_idle_conns", Message: "cannot exceed max_open_conns"})
		}
		errs = append(errs, nonNegative("storage.governance.sqlite.busy_timeout", cfg.Governance.SQLite.BusyTimeout)...)
	case "memory":
	default:
		errs = append(errs, FieldError{Field: "storage.governance.backend", Message: fmt.Sprintf("unsupported backend %q (expected sqlite or memory)", cfg.Governance.Backend)})
	}

	switch cfg.Business.Backend {
	case "sqlite":
		if cfg.Business.Path == "" {
			errs = append(errs, FieldError{Field: "storage.business.path", Message: "path is required for the sqlite backend"})
		}
		errs = append(errs, nonNegative("storage.business.busy_timeout", cfg.Business.BusyTimeout)...)
	case "memory":
	default:
		errs = append(errs, FieldError{Field: "storage.business.backend", Message: fmt.Sprintf("unsupported backend %q (expected sqlite or memory)", cfg.Business.Backend)})
	}
	return errs
}

func validateJobs(cfg *JobsConfig) []FieldError {
	var errs []FieldError

	if cfg.Workers < 1 || cfg.Workers > 256 {
		errs = append(errs, FieldError{Field: "jobs.workers", Message: "must be between 1 and 256"})
	}
	if cfg.PollInterval < 10*time.Millisecond {
		errs = append(errs, FieldError{Field: "jobs.poll_interval", Message: "must be at least 10ms"})
	}
	if cfg.RetryBackoff <= 0 {
		errs = append(errs, FieldError{Field: "jobs.retry_backoff", Message: "must be positive"})
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		errs = append(errs, FieldError{Field: "jobs.max_backoff", Message: "cannot be less than retry_backoff"})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{Field: "jobs.max_retries", Message: "must be non-negative"})
	}
	errs = append(errs, nonNegative("jobs.reaper_interval", cfg.ReaperInterval)...)
	errs = append(errs, nonNegative("jobs.shutdown_timeout", cfg.ShutdownTimeout)...)

	for name, d := range cfg.Timeouts {
		field := "jobs.timeouts." + name
		if !governance.JobType(name).Valid() {
			errs = append(errs, FieldError{Field: field, Message: "unknown job type"})
			continue
		}
		if d <= 0 {
			errs = append(errs, FieldError{Field: field, Message: "must be positive"})
		}
	}
	return errs
}

func validateGate(cfg *GateConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.Address == "" {
			errs = append(errs, FieldError{Field: "gate.redis.address", Message: "address is required for the redis backend"})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{Field: "gate.redis.db", Message: "must be non-negative"})
		}
	default:
		errs = append(errs, FieldError{Field: "gate.backend", Message: fmt.Sprintf("unsupported backend %q (expected memory or redis)", cfg.Backend)})
	}

	if cfg.TokenLength < 6 || cfg.TokenLength > 64 {
		errs = append(errs, FieldError{Field: "gate.token_length", Message: "must be between 6 and 64"})
	}
	if cfg.ChallengeTTL < time.Minute {
		errs = append(errs, FieldError{Field: "gate.challenge_ttl", Message: "must be at least 1m"})
	}
	return errs
}

func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if s := cfg.CronSchedule(); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			errs = append(errs, FieldError{Field: "retention.schedule", Message: fmt.Sprintf("invalid cron schedule: %v", err)})
		}
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > 100000 {
		errs = append(errs, FieldError{Field: "retention.batch_size", Message: "must be between 1 and 100000"})
	}
	if cfg.Watch && cfg.PolicyFile == "" {
		errs = append(errs, FieldError{Field: "retention.watch", Message: "watch requires policy_file"})
	}
	errs = append(errs, nonNegative("retention.watch_debounce", cfg.WatchDebounce)...)

	seen := make(map[string]bool)
	for i, p := range cfg.Policies {
		field := fmt.Sprintf("retention.policies[%d]", i)
		switch {
		case p.Category == "":
			errs = append(errs, FieldError{Field: field + ".category", Message: "category is required"})
			continue
		case seen[p.Category]:
			errs = append(errs, FieldError{Field: field + ".category", Message: fmt.Sprintf("duplicate category %q", p.Category)})
		}
		seen[p.Category] = true

		if p.TTL < 0 || p.TTLDays < 0 {
			errs = append(errs, FieldError{Field: field + ".ttl", Message: "must be non-negative"})
		}
		if p.TTL != 0 && p.TTLDays != 0 {
			errs = append(errs, FieldError{Field: field + ".ttl", Message: "set ttl or ttl_days, not both"})
		}
		if governance.IsPrimaryBusinessData(p.Category) && p.Enabled != nil && *p.Enabled {
			errs = append(errs, FieldError{Field: field + ".enabled", Message: fmt.Sprintf("%s is primary business data and cannot be swept", p.Category)})
		}
	}
	return errs
}

func validateExport(cfg *ExportConfig) []FieldError {
	var errs []FieldError

	switch cfg.Sink {
	case "filesystem":
		if cfg.Filesystem.Root == "" {
			errs = append(errs, FieldError{Field: "export.filesystem.root", Message: "root is required for the filesystem sink"})
		}
	case "s3":
		if cfg.S3.Bucket == "" {
			errs = append(errs, FieldError{Field: "export.s3.bucket", Message: "bucket is required for the s3 sink"})
		}
		if cfg.S3.Region == "" && cfg.S3.Endpoint == "" {
			errs = append(errs, FieldError{Field: "export.s3.region", Message: "region or endpoint is required"})
		}
		if (cfg.S3.AccessKeyID == "") != (cfg.S3.SecretAccessKey == "") {
			errs = append(errs, FieldError{Field: "export.s3.access_key_id", Message: "access_key_id and secret_access_key must be set together"})
		}
	default:
		errs = append(errs, FieldError{Field: "export.sink", Message: fmt.Sprintf("unsupported sink %q (expected filesystem or s3)", cfg.Sink)})
	}
	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	ids := map[string]bool{}
	keys := append([]AuditKeyConfig{cfg.Key}, cfg.Historical...)
	for i, k := range keys {
		field := "audit.key"
		if i > 0 {
			field = fmt.Sprintf("audit.historical[%d]", i-1)
		}
		if k.ID == "" {
			errs = append(errs, FieldError{Field: field + ".id", Message: "key id is required"})
		} else if ids[k.ID] {
			errs = append(errs, FieldError{Field: field + ".id", Message: fmt.Sprintf("duplicate key id %q", k.ID)})
		}
		ids[k.ID] = true
		if k.Secret == "" {
			errs = append(errs, FieldError{Field: field + ".secret", Message: "secret name is required"})
		}
	}

	if cfg.VerifyBatchSize < 1 {
		errs = append(errs, FieldError{Field: "audit.verify_batch_size", Message: "must be at least 1"})
	}
	return errs
}

func validateSecrets(cfg *SecretsConfig) []FieldError {
	var errs []FieldError

	if cfg.Watch && cfg.Dir == "" {
		errs = append(errs, FieldError{Field: "secrets.watch", Message: "watch requires dir"})
	}
	errs = append(errs, nonNegative("secrets.cache.ttl", cfg.Cache.TTL)...)
	if cfg.Cache.MaxSize < 0 {
		errs = append(errs, FieldError{Field: "secrets.cache.max_size", Message: "must be non-negative"})
	}
	return errs
}

func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled && len(cfg.APIKeys) == 0 {
		errs = append(errs, FieldError{Field: "auth.api_keys", Message: "at least one API key is required when auth is enabled"})
	}
	for i, k := range cfg.APIKeys {
		field := fmt.Sprintf("auth.api_keys[%d]", i)
		if k.Key == "" {
			errs = append(errs, FieldError{Field: field + ".key", Message: "key is required"})
		}
		if k.Actor == "" {
			errs = append(errs, FieldError{Field: field + ".actor", Message: "actor is required"})
		}
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("invalid log level %q", cfg.Logging.Level)})
	}
	switch cfg.Logging.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("invalid log format %q", cfg.Logging.Format)})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		if p.Name == "" || p.Pattern == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("telemetry.logging.redact_patterns[%d]", i), Message: "name and pattern are required"})
		}
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}
	for i := 1; i < len(cfg.Metrics.DurationBuckets); i++ {
		if cfg.Metrics.DurationBuckets[i] <= cfg.Metrics.DurationBuckets[i-1] {
			errs = append(errs, FieldError{Field: "telemetry.metrics.duration_buckets", Message: "buckets must be strictly increasing"})
			break
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: fmt.Sprintf("invalid sampler %q (expected always, never or ratio)", cfg.Tracing.Sampler)})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0.0 and 1.0"})
	}
	errs = append(errs, nonNegative("telemetry.health.check_timeout", cfg.Health.CheckTimeout)...)
	return errs
}

func nonNegative(field string, d time.Duration) []FieldError {
	if d < 0 {
		return []FieldError{{Field: field, Message: "must be non-negative"}}
	}
	return nil
}
