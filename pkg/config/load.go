package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "STEWARD_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention STEWARD_SECTION_FIELD (e.g., STEWARD_SERVER_LISTEN_ADDRESS) and
// always take precedence over the file.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
//
// An empty path loads the defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = &Config{}
		ApplyDefaults(cfg)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies STEWARD_* environment variables. A variable
// that cannot be parsed is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	o := &overrider{}

	// Server overrides
	o.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	o.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	o.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	o.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Storage overrides
	o.str("STORAGE_GOVERNANCE_BACKEND", &cfg.Storage.Governance.Backend)
	o.str("STORAGE_GOVERNANCE_SQLITE_PATH", &cfg.Storage.Governance.SQLite.Path)
	o.str("STORAGE_BUSINESS_BACKEND", &cfg.Storage.Business.Backend)
	o.str("STORAGE_BUSINESS_PATH", &cfg.Storage.Business.Path)

	// Jobs overrides
	o.integer("JOBS_WORKERS", &cfg.Jobs.Workers)
	o.duration("JOBS_POLL_INTERVAL", &cfg.Jobs.PollInterval)
	o.duration("JOBS_RETRY_BACKOFF", &cfg.Jobs.RetryBackoff)
	o.integer("JOBS_MAX_RETRIES", &cfg.Jobs.MaxRetries)

	// Gate overrides
	o.str("GATE_BACKEND", &cfg.Gate.Backend)
	o.duration("GATE_CHALLENGE_TTL", &cfg.Gate.ChallengeTTL)
	o.str("GATE_REDIS_ADDRESS", &cfg.Gate.Redis.Address)
	o.str("GATE_REDIS_PASSWORD", &cfg.Gate.Redis.Password)
	o.integer("GATE_REDIS_DB", &cfg.Gate.Redis.DB)

	// Retention overrides
	o.str("RETENTION_SCHEDULE", &cfg.Retention.Schedule)
	o.integer("RETENTION_BATCH_SIZE", &cfg.Retention.BatchSize)
	o.str("RETENTION_POLICY_FILE", &cfg.Retention.PolicyFile)
	o.boolean("RETENTION_WATCH", &cfg.Retention.Watch)

	// Export overrides
	o.str("EXPORT_SINK", &cfg.Export.Sink)
	o.str("EXPORT_FILESYSTEM_ROOT", &cfg.Export.Filesystem.Root)
	o.str("EXPORT_S3_BUCKET", &cfg.Export.S3.Bucket)
	o.str("EXPORT_S3_REGION", &cfg.Export.S3.Region)
	o.str("EXPORT_S3_ENDPOINT", &cfg.Export.S3.Endpoint)
	o.str("EXPORT_S3_PREFIX", &cfg.Export.S3.Prefix)

	// Audit overrides
	o.str("AUDIT_KEY_ID", &cfg.Audit.Key.ID)
	o.str("AUDIT_KEY_SECRET", &cfg.Audit.Key.Secret)

	// Secrets overrides
	o.str("SECRETS_DIR", &cfg.Secrets.Dir)
	o.boolean("SECRETS_WATCH", &cfg.Secrets.Watch)

	// Auth overrides
	o.boolean("AUTH_ENABLED", &cfg.Auth.Enabled)

	// Telemetry overrides
	o.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	o.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	o.boolPtr("TELEMETRY_LOGGING_REDACT_PII", &cfg.Telemetry.Logging.RedactPII)
	o.boolPtr("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	o.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	o.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	o.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	o.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	if len(o.errs) > 0 {
		return ValidationError{Errors: o.errs}
	}
	return nil
}

// overrider reads STEWARD_* variables into config fields and collects
// parse failures.
type overrider struct {
	errs []FieldError
}

func (o *overrider) lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	return val, ok && val != ""
}

func (o *overrider) fail(name string, err error) {
	o.errs = append(o.errs, FieldError{Field: EnvPrefix + name, Message: err.Error()})
}

func (o *overrider) str(name string, dst *string) {
	if val, ok := o.lookup(name); ok {
		*dst = val
	}
}

func (o *overrider) duration(name string, dst *time.Duration) {
	if val, ok := o.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = d
	}
}

func (o *overrider) integer(name string, dst *int) {
	if val, ok := o.lookup(name); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = i
	}
}

func (o *overrider) float(name string, dst *float64) {
	if val, ok := o.lookup(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = f
	}
}

func (o *overrider) boolean(name string, dst *bool) {
	if val, ok := o.lookup(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = b
	}
}

func (o *overrider) boolPtr(name string, dst **bool) {
	if val, ok := o.lookup(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = &b
	}
}
