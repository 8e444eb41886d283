package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"maturity-hq/steward/pkg/cli"
	"maturity-hq/steward/pkg/config"
	"maturity-hq/steward/pkg/governance/retention"
	"maturity-hq/steward/pkg/server"
	"maturity-hq/steward/pkg/telemetry/health"
	"maturity-hq/steward/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the API server and job workers",
	Long: `Start the HTTP API, the job worker pool and the retention scheduler.

Examples:
  # Start with a config file
  steward run --config /etc/steward/steward.yaml

  # Override listen address
  steward run --listen 0.0.0.0:8080

  # Validate config without starting anything
  steward run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(rootFlags.configFile)
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithServiceVersion(Version))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Tracing.Timeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	configPath := rootFlags.configFile
	cli.HandleReload(ctx, func() {
		if err := config.ReloadConfig(configPath); err != nil {
			logger.Error("configuration reload failed", "error", err)
			return
		}
		if err := a.applyRetention(config.GetConfig().Retention); err != nil {
			logger.Error("retention policies not reloaded", "error", err)
			return
		}
		logger.Info("configuration reloaded", "path", configPath)
	})

	if cfg.Retention.Watch {
		go func() {
			if err := a.policies.Watch(ctx, cfg.Retention.PolicyFile, cfg.Retention.WatchDebounce); err != nil {
				logger.Error("retention policy watch stopped", "error", err)
			}
		}()
	}

	scheduler := retention.NewScheduler(a.sweeper, cfg.Retention.CronSchedule())
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()
	if next := scheduler.NextRun(); next != nil {
		logger.Info("next retention sweep", "at", next)
	}

	if err := a.pool.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Jobs.ShutdownTimeout)
		defer cancel()
		if err := a.pool.Shutdown(shutdownCtx); err != nil {
			logger.Warn("worker pool shutdown incomplete", "error", err)
		}
	}()

	routes := server.Routes{
		API:          a.handler(),
		Health:       a.health,
		Version:      health.NewVersionInfo(Version, GitCommit, BuildDate),
		Tracer:       tracer,
		APIKeys:      a.apiKeys(),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if a.metrics != nil {
		routes.Metrics = a.metrics
		routes.MetricsPath = cfg.Telemetry.Metrics.Path
	}

	logger.Info("steward starting",
		"version", Version,
		"governance_backend", cfg.Storage.Governance.Backend,
		"business_backend", cfg.Storage.Business.Backend,
		"gate_backend", cfg.Gate.Backend,
		"export_sink", cfg.Export.Sink,
		"auth_enabled", cfg.Auth.Enabled,
		"tracing_enabled", tracer.Enabled(),
	)
	if err := server.New(&cfg.Server, server.NewRouter(routes)).Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}
