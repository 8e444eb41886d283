package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"maturity-hq/steward/pkg/api/handlers"
	"maturity-hq/steward/pkg/blob"
	"maturity-hq/steward/pkg/business"
	"maturity-hq/steward/pkg/config"
	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/governance/export"
	"maturity-hq/steward/pkg/governance/gate"
	"maturity-hq/steward/pkg/governance/jobs"
	"maturity-hq/steward/pkg/governance/purge"
	"maturity-hq/steward/pkg/governance/retention"
	"maturity-hq/steward/pkg/governance/service"
	"maturity-hq/steward/pkg/governance/storage"
	"maturity-hq/steward/pkg/security/auth"
	"maturity-hq/steward/pkg/security/secrets"
	"maturity-hq/steward/pkg/telemetry/health"
	"maturity-hq/steward/pkg/telemetry/logging"
	"maturity-hq/steward/pkg/telemetry/metrics"
)

// artifactSink stores export bundles and expires them.
type artifactSink interface {
	governance.BlobSink
	governance.Sweepable
}

// app holds every component of a steward process. Commands build one with
// newApp and release it with close.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	secrets  *secrets.Manager
	jobs     governance.JobStore
	audit    governance.AuditStore
	business business.Store
	sink     artifactSink

	trail    *audit.Trail
	gate     *gate.Gate
	policies *retention.Registry
	sweeper  *retention.Sweeper
	pool     *jobs.Pool
	service  *service.Service
	metrics  *metrics.Collector
	health   *health.Checker

	closers []func() error
}

// loadConfig reads the config file, applies environment overrides and
// installs the process logger.
func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, nil, err
	}
	if rootFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = rootFlags.logLevel
	}
	config.SetConfig(cfg)

	lc := cfg.Telemetry.Logging
	patterns := make([]logging.Pattern, 0, len(lc.RedactPatterns))
	for _, p := range lc.RedactPatterns {
		patterns = append(patterns, logging.Pattern{Name: p.Name, Pattern: p.Pattern, Replacement: p.Replacement})
	}
	logger, err := logging.Setup(logging.Config{
		Level:          lc.Level,
		Format:         lc.Format,
		AddSource:      lc.AddSource,
		RedactPII:      lc.RedactEnabled(),
		RedactPatterns: patterns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, logger, nil
}

// newApp wires the stores, the audit trail, the gate, the retention
// sweeper, the worker pool and the service from cfg. Nothing is started.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, health: health.New(cfg.Telemetry.Health.CheckTimeout)}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.Telemetry.Metrics.IsEnabled() {
		a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}
	if err := a.openSecrets(ctx); err != nil {
		return nil, err
	}
	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	keys, err := secrets.NewKeyRing(a.secrets, keyRef(cfg.Audit.Key), keyRefs(cfg.Audit.Historical)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build audit key ring: %w", err)
	}
	trailOpts := []audit.Option{audit.WithVerifyBatchSize(cfg.Audit.VerifyBatchSize)}
	if a.metrics != nil {
		trailOpts = append(trailOpts, audit.WithIntegrityHook(a.metrics.IntegrityFailure))
	}
	a.trail = audit.NewTrail(a.audit, keys, trailOpts...)

	if err := a.openGate(ctx); err != nil {
		return nil, err
	}
	if err := a.buildRetention(); err != nil {
		return nil, err
	}

	purger := purge.NewHandler(a.business, a.jobs, a.trail)
	registry := jobs.NewRegistry()
	for jobType, h := range map[governance.JobType]jobs.Handler{
		governance.JobTypeExport:         export.NewHandler(a.business, a.sink, a.trail),
		governance.JobTypePurge:          purger,
		governance.JobTypeTTLCleanup:     retention.CleanupHandler(a.sweeper),
		governance.JobTypeAuditRetention: retention.AuditRetentionHandler(a.sweeper),
	} {
		if err := registry.Register(jobType, h); err != nil {
			return nil, err
		}
	}

	jc := cfg.Jobs
	poolCfg := &jobs.Config{
		Workers:         jc.Workers,
		PollInterval:    jc.PollInterval,
		RetryBackoff:    jc.RetryBackoff,
		MaxBackoff:      jc.MaxBackoff,
		Timeouts:        jobs.DefaultConfig().Timeouts,
		ReaperInterval:  jc.ReaperInterval,
		ShutdownTimeout: jc.ShutdownTimeout,
	}
	for t, d := range jc.JobTimeouts() {
		poolCfg.Timeouts[t] = d
	}
	var poolOpts []jobs.Option
	if a.metrics != nil {
		poolOpts = append(poolOpts, jobs.WithMetrics(a.metrics))
	}
	a.pool = jobs.NewPool(poolCfg, a.jobs, registry, a.trail, poolOpts...)

	a.service = service.New(service.Config{MaxRetries: jc.MaxRetries},
		a.jobs, a.business, a.gate, a.trail, purger, service.WithWaker(a.pool))
	return a, nil
}

func (a *app) openSecrets(ctx context.Context) error {
	sc := a.cfg.Secrets
	providers := []secrets.SecretProvider{secrets.NewEnvProvider(sc.EnvPrefix)}
	if sc.Dir != "" {
		fp, err := secrets.NewFileProvider(sc.Dir, sc.Watch)
		if err != nil {
			return fmt.Errorf("failed to open secrets directory: %w", err)
		}
		a.closers = append(a.closers, fp.Close)
		providers = append(providers, fp)
	}
	a.secrets = secrets.NewManager(providers, secrets.CacheConfig{
		Enabled: sc.Cache.IsEnabled(),
		TTL:     sc.Cache.TTL,
		MaxSize: sc.Cache.MaxSize,
	})

	// Credentials in the config may be ${secret:name} references.
	for _, field := range []*string{
		&a.cfg.Gate.Redis.Password,
		&a.cfg.Export.S3.AccessKeyID,
		&a.cfg.Export.S3.SecretAccessKey,
	} {
		v, err := a.secrets.ResolveReferences(ctx, *field)
		if err != nil {
			return err
		}
		*field = v
	}
	for i := range a.cfg.Auth.APIKeys {
		v, err := a.secrets.ResolveReferences(ctx, a.cfg.Auth.APIKeys[i].Key)
		if err != nil {
			return fmt.Errorf("auth.api_keys[%d]: %w", i, err)
		}
		a.cfg.Auth.APIKeys[i].Key = v
	}
	return nil
}

func (a *app) openStores(ctx context.Context) error {
	gc := a.cfg.Storage.Governance
	switch gc.Backend {
	case "sqlite":
		db, err := storage.OpenSQLite(&storage.SQLiteConfig{
			Path:         gc.SQLite.Path,
			MaxOpenConns: gc.SQLite.MaxOpenConns,
			MaxIdleConns: gc.SQLite.MaxIdleConns,
			WALMode:      gc.SQLite.WALEnabled(),
			BusyTimeout:  gc.SQLite.BusyTimeout,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.jobs, a.audit = db.Jobs(), db.Audit()
		a.health.RegisterCheck("governance_db", health.PingCheck(db))
	default:
		a.logger.Warn("governance storage is in memory; jobs and audit events are lost on exit")
		a.jobs, a.audit = storage.NewMemoryJobStore(), storage.NewMemoryAuditStore()
	}

	bc := a.cfg.Storage.Business
	switch bc.Backend {
	case "sqlite":
		store, err := business.OpenSQLite(business.SQLiteConfig{
			Path:               bc.Path,
			CheckpointInterval: bc.CheckpointInterval,
			BusyTimeout:        bc.BusyTimeout,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.business = store
		a.health.RegisterCheck("business_db", health.PingCheck(store))
	default:
		a.business = business.NewMemoryStore()
	}

	ec := a.cfg.Export
	switch ec.Sink {
	case "s3":
		sink, err := blob.NewS3Sink(ctx, blob.S3Config{
			Bucket:          ec.S3.Bucket,
			Region:          ec.S3.Region,
			Endpoint:        ec.S3.Endpoint,
			Prefix:          ec.S3.Prefix,
			AccessKeyID:     ec.S3.AccessKeyID,
			SecretAccessKey: ec.S3.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		a.sink = sink
	default:
		sink, err := blob.NewFSSink(ec.Filesystem.Root)
		if err != nil {
			return err
		}
		a.sink = sink
	}
	return nil
}

func (a *app) openGate(ctx context.Context) error {
	gc := a.cfg.Gate
	var store gate.ChallengeStore
	switch gc.Backend {
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr:     gc.Redis.Address,
			Password: gc.Redis.Password,
			DB:       gc.Redis.DB,
		})
		rs := gate.NewRedisStore(rc, gc.Redis.Prefix)
		a.closers = append(a.closers, rs.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			return fmt.Errorf("failed to reach challenge store at %s: %w", gc.Redis.Address, err)
		}
		a.health.RegisterCheck("challenge_store", health.PingCheck(rs))
		store = rs
	default:
		store = gate.NewMemoryStore()
	}
	a.gate = gate.New(store, &gate.Config{TokenLength: gc.TokenLength, TTL: gc.ChallengeTTL}, nil)
	return nil
}

// applyRetention replaces the registry's policies with the configured
// overrides, or with the policy file when one is set.
func (a *app) applyRetention(rc config.RetentionConfig) error {
	if rc.PolicyFile != "" {
		return a.policies.LoadFile(rc.PolicyFile)
	}
	return a.policies.Replace(rc.Overrides())
}

func (a *app) buildRetention() error {
	rc := a.cfg.Retention
	policies, err := retention.NewRegistry()
	if err != nil {
		return err
	}
	a.policies = policies
	if err := a.applyRetention(rc); err != nil {
		return err
	}

	opts := []retention.SweeperOption{retention.WithBatchSize(rc.BatchSize)}
	if a.metrics != nil {
		opts = append(opts, retention.WithMetrics(a.metrics))
	}
	a.sweeper = retention.NewSweeper(policies, a.trail, opts...)
	for category, target := range map[string]governance.Sweepable{
		governance.CategoryOperationalLogs: a.business.OperationalLogs(),
		governance.CategoryTempData:        a.business.TempData(),
		governance.CategoryExportArtifacts: a.sink,
		governance.CategoryJobRecords:      a.jobs,
		governance.CategoryAuditLogs:       a.trail,
	} {
		if err := a.sweeper.Register(category, target); err != nil {
			return err
		}
	}
	return nil
}

// apiKeys returns the key store for API authentication, or nil when
// authentication is off.
func (a *app) apiKeys() auth.APIKeyStore {
	if !a.cfg.Auth.Enabled {
		return nil
	}
	keys := make([]*auth.APIKeyInfo, 0, len(a.cfg.Auth.APIKeys))
	for _, k := range a.cfg.Auth.APIKeys {
		keys = append(keys, &auth.APIKeyInfo{
			Key:       k.Key,
			Actor:     k.Actor,
			Admin:     k.Admin,
			Enabled:   k.Enabled == nil || *k.Enabled,
			CreatedAt: time.Now(),
		})
	}
	return auth.NewAPIKeyValidator(keys)
}

// handler returns the /v1 API handler.
func (a *app) handler() *handlers.Handler {
	var opts []handlers.Option
	if a.metrics != nil {
		opts = append(opts, handlers.WithVerifyObserver(a.metrics.VerificationFinished))
	}
	return handlers.New(a.service, opts...)
}

func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn("error while closing resources", "error", err)
	}
}

func keyRef(k config.AuditKeyConfig) secrets.KeyRef {
	return secrets.KeyRef{ID: k.ID, Secret: k.Secret}
}

func keyRefs(ks []config.AuditKeyConfig) []secrets.KeyRef {
	out := make([]secrets.KeyRef, 0, len(ks))
	for _, k := range ks {
		out = append(out, keyRef(k))
	}
	return out
}
