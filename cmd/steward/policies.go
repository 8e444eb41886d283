package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/retention"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Show and validate retention policies",
}

var policiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the effective retention policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(rootFlags.configFile)
		if err != nil {
			return err
		}
		registry, err := retention.NewRegistry(cfg.Retention.Overrides()...)
		if err != nil {
			return err
		}
		if cfg.Retention.PolicyFile != "" {
			if err := registry.LoadFile(cfg.Retention.PolicyFile); err != nil {
				return err
			}
		}
		return printResult(cmd, policyTable(registry.Policies()))
	},
}

var policiesValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a retention policy file",
	Long: `Parse a retention policy file and check it against the built-in
categories. Enabling a category that holds primary business data is an
error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		overrides, err := retention.ParsePolicyFile(data)
		if err != nil {
			return err
		}
		if _, err := retention.NewRegistry(overrides...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d policies valid\n", args[0], len(overrides))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policiesCmd)
	policiesCmd.AddCommand(policiesListCmd, policiesValidateCmd)
}

type policyTable []governance.RetentionPolicy

func (t policyTable) Header() []string {
	return []string{"CATEGORY", "TTL", "ENABLED", "SWEEPABLE"}
}

func (t policyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		ttl := "-"
		if p.TTL > 0 {
			ttl = p.TTL.String()
		}
		rows = append(rows, []string{p.Category, ttl, fmt.Sprint(p.Enabled), fmt.Sprint(p.Sweepable())})
	}
	return rows
}
