package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 1048576 // 1MB

	// Storage defaults
	DefaultGovernanceBackend        = "sqlite"
	DefaultGovernanceSQLitePath     = "data/governance.db"
	DefaultGovernanceMaxOpenConns   = 1
	DefaultGovernanceMaxIdleConns   = 1
	DefaultSQLiteBusyTimeout        = 5 * time.Second
	DefaultBusinessBackend          = "sqlite"
	DefaultBusinessSQLitePath       = "data/business.db"
	DefaultBusinessCheckpointPeriod = 5 * time.Minute

	// Jobs defaults
	DefaultJobWorkers         = 4
	DefaultJobPollInterval    = time.Second
	DefaultJobRetryBackoff    = 5 * time.Second
	DefaultJobMaxBackoff      = 5 * time.Minute
	DefaultJobMaxRetries      = 3
	DefaultJobReaperInterval  = time.Minute
	DefaultJobShutdownTimeout = 30 * time.Second

	// Gate defaults
	DefaultGateBackend      = "memory"
	DefaultGateTokenLength  = 8
	DefaultGateChallengeTTL = 15 * time.Minute
	DefaultRedisAddress     = "127.0.0.1:6379"
	DefaultRedisPrefix      = "steward:challenge:"

	// Retention defaults
	DefaultRetentionSchedule      = "@every 1h"
	DefaultRetentionBatchSize     = 500
	DefaultRetentionWatchDebounce = 500 * time.Millisecond

	// Export defaults
	DefaultExportSink           = "filesystem"
	DefaultExportFilesystemRoot = "data/artifacts"

	// Audit defaults
	DefaultAuditKeyID           = "default"
	DefaultAuditKeySecret       = "audit_hmac_key"
	DefaultAuditVerifyBatchSize = 1000

	// Secrets defaults
	DefaultSecretsEnvPrefix    = "STEWARD_SECRET_"
	DefaultSecretsCacheTTL     = 5 * time.Minute
	DefaultSecretsCacheMaxSize = 100

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "steward"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingServiceName = "steward"
	DefaultTracingTimeout     = 10 * time.Second
	DefaultHealthCheckTimeout = 2 * time.Second
)

// DefaultDurationBuckets are histogram buckets, in seconds, sized for jobs
// that run from milliseconds to the 30 minute export limit.
var DefaultDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800}

// ApplyDefaults fills every unset field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	applyStorageDefaults(&cfg.Storage)

	// Jobs defaults
	if cfg.Jobs.Workers == 0 {
		cfg.Jobs.Workers = DefaultJobWorkers
	}
	if cfg.Jobs.PollInterval == 0 {
		cfg.Jobs.PollInterval = DefaultJobPollInterval
	}
	if cfg.Jobs.RetryBackoff == 0 {
		cfg.Jobs.RetryBackoff = DefaultJobRetryBackoff
	}
	if cfg.Jobs.MaxBackoff == 0 {
		cfg.Jobs.MaxBackoff = DefaultJobMaxBackoff
	}
	if cfg.Jobs.MaxRetries == 0 {
		cfg.Jobs.MaxRetries = DefaultJobMaxRetries
	}
	if cfg.Jobs.ReaperInterval == 0 {
		cfg.Jobs.ReaperInterval = DefaultJobReaperInterval
	}
	if cfg.Jobs.ShutdownTimeout == 0 {
		cfg.Jobs.ShutdownTimeout = DefaultJobShutdownTimeout
	}

	// Gate defaults
	if cfg.Gate.Backend == "" {
		cfg.Gate.Backend = DefaultGateBackend
	}
	if cfg.Gate.TokenLength == 0 {
		cfg.Gate.TokenLength = DefaultGateTokenLength
	}
	if cfg.Gate.ChallengeTTL == 0 {
		cfg.Gate.ChallengeTTL = DefaultGateChallengeTTL
	}
	if cfg.Gate.Redis.Address == "" {
		cfg.Gate.Redis.Address = DefaultRedisAddress
	}
	if cfg.Gate.Redis.Prefix == "" {
		cfg.Gate.Redis.Prefix = DefaultRedisPrefix
	}

	// Retention defaults
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSchedule
	}
	if cfg.Retention.BatchSize == 0 {
		cfg.Retention.BatchSize = DefaultRetentionBatchSize
	}
	if cfg.Retention.WatchDebounce == 0 {
		cfg.Retention.WatchDebounce = DefaultRetentionWatchDebounce
	}

	// Export defaults
	if cfg.Export.Sink == "" {
		cfg.Export.Sink = DefaultExportSink
	}
	if cfg.Export.Filesystem.Root == "" {
		cfg.Export.Filesystem.Root = DefaultExportFilesystemRoot
	}

	// Audit defaults
	if cfg.Audit.Key.ID == "" {
		cfg.Audit.Key.ID = DefaultAuditKeyID
	}
	if cfg.Audit.Key.Secret == "" {
		cfg.Audit.Key.Secret = DefaultAuditKeySecret
	}
	if cfg.Audit.VerifyBatchSize == 0 {
		cfg.Audit.VerifyBatchSize = DefaultAuditVerifyBatchSize
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.Secrets.Cache.TTL == 0 {
		cfg.Secrets.Cache.TTL = DefaultSecretsCacheTTL
	}
	if cfg.Secrets.Cache.MaxSize == 0 {
		cfg.Secrets.Cache.MaxSize = DefaultSecretsCacheMaxSize
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Governance.Backend == "" {
		cfg.Governance.Backend = DefaultGovernanceBackend
	}
	if cfg.Governance.SQLite.Path == "" {
		cfg.Governance.SQLite.Path = DefaultGovernanceSQLitePath
	}
	if cfg.Governance.SQLite.MaxOpenConns == 0 {
		cfg.Governance.SQLite.MaxOpenConns = DefaultGovernanceMaxOpenConns
	}
	if cfg.Governance.SQLite.MaxIdleConns == 0 {
		cfg.Governance.SQLite.MaxIdleConns = DefaultGovernanceMaxIdleConns
	}
	if cfg.Governance.SQLite.BusyTimeout == 0 {
		cfg.Governance.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	if cfg.Business.Backend == "" {
		cfg.Business.Backend = DefaultBusinessBackend
	}
	if cfg.Business.Path == "" {
		cfg.Business.Path = DefaultBusinessSQLitePath
	}
	if cfg.Business.BusyTimeout == 0 {
		cfg.Business.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Business.CheckpointInterval == 0 {
		cfg.Business.CheckpointInterval = DefaultBusinessCheckpointPeriod
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Metrics.DurationBuckets) == 0 {
		cfg.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}

	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}

	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
