package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"maturity-hq/steward/pkg/cli"
	"maturity-hq/steward/pkg/governance/retention"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep [CATEGORY...]",
	Short: "Run a retention sweep now",
	Long: `Delete records older than their category's TTL, for the named
categories or every registered one. Categories holding primary business
data are never swept.

Examples:
  steward sweep
  steward sweep operational_logs temp_data`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			categories := args
			if len(categories) == 0 {
				for _, p := range a.policies.Policies() {
					categories = append(categories, p.Category)
				}
			}

			run := retention.Run{Actor: rootFlags.actor, CorrelationID: uuid.New().String()}
			progress := cli.NewProgressReporter(cmd.ErrOrStderr())
			progress.Start(len(categories))

			var (
				results []retention.CategoryReport
				errs    []error
			)
			for _, category := range categories {
				report, err := a.sweeper.SweepAs(ctx, run, category)
				if err != nil {
					errs = append(errs, err)
				}
				if report == nil {
					progress.Step(category, "not swept")
					continue
				}
				for _, cr := range report.Categories {
					results = append(results, cr)
					progress.Step(cr.Category, describeSweep(cr))
				}
			}
			progress.Finish()

			if err := printResult(cmd, sweepTable{CorrelationID: run.CorrelationID, Categories: results}); err != nil {
				return err
			}
			return errors.Join(errs...)
		})
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func describeSweep(cr retention.CategoryReport) string {
	switch {
	case cr.Error != "":
		return "failed: " + cr.Error
	case cr.Skipped != "":
		return "skipped: " + cr.Skipped
	default:
		return fmt.Sprintf("deleted %d", cr.Deleted)
	}
}

type sweepTable struct {
	CorrelationID string                     `json:"correlation_id"`
	Categories    []retention.CategoryReport `json:"categories"`
}

func (t sweepTable) Header() []string {
	return []string{"CATEGORY", "DELETED", "BATCHES", "CUTOFF", "SKIPPED", "ERROR"}
}

func (t sweepTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Categories))
	for _, c := range t.Categories {
		cutoff := ""
		if !c.Cutoff.IsZero() {
			cutoff = c.Cutoff.UTC().Format("2006-01-02T15:04:05Z")
		}
		rows = append(rows, []string{c.Category, fmt.Sprint(c.Deleted), fmt.Sprint(c.Batches), cutoff, c.Skipped, c.Error})
	}
	return rows
}
