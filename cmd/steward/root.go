package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"maturity-hq/steward/pkg/cli"
)

var rootFlags struct {
	configFile string
	logLevel   string
	output     string
	actor      string
}

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Steward - data lifecycle and audit for assessment engagements",
	Long: `Steward handles the regulated end of an engagement's life: GDPR data
exports, confirmed purges with a recovery window, TTL cleanup of
operational data, and an HMAC-protected audit trail of every step.

The run command serves the HTTP API and processes jobs. The other commands
work against the same stores for operators and scheduled tasks.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code mapped from its
// error.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configFile, "config", "c", "", "config file path (defaults and STEWARD_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.output, "output", "o", "text", "output format (text, json, csv)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.actor, "actor", "cli", "actor recorded on audit events")
}

// printResult renders v in the --output format.
func printResult(cmd *cobra.Command, v any) error {
	format, err := cli.ParseOutputFormat(rootFlags.output)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), v)
}

// withApp loads the configuration, builds the application, runs fn and
// releases everything fn did not take over.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := loadConfig(rootFlags.configFile)
	if err != nil {
		return err
	}
	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	if cfg.Storage.Governance.Backend == "memory" {
		logger.Warn("governance storage is in memory; this command cannot see the server's jobs or audit events")
	}
	return fn(ctx, a)
}
