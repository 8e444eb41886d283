package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/service"
)

var jobsFlags struct {
	engagementID string
	status       string
	max          int
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and process background jobs",
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			job, err := a.service.Job(ctx, args[0], "")
			if err != nil {
				return err
			}
			return printResult(cmd, jobTable{*job})
		})
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs of an engagement or in a status",
	Long: `List jobs of an engagement, optionally filtered by status, or every job
in a status.

Examples:
  steward jobs list --engagement eng-42
  steward jobs list --status failed -o csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			jobs, err := a.service.ListJobs(ctx, jobsFlags.engagementID, governance.JobStatus(jobsFlags.status))
			if err != nil {
				return err
			}
			return printResult(cmd, jobTable(jobs))
		})
	},
}

var jobsDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Process pending jobs in the foreground and exit",
	Long: `Claim and execute pending jobs one at a time until none is claimable,
after reaping jobs stuck in processing. Useful when the worker pool is not
running, for example from a scheduled task. --max bounds how many jobs run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			reaped, err := a.pool.Reap(ctx)
			if err != nil {
				return err
			}
			var processed int
			if jobsFlags.max > 0 {
				for processed < jobsFlags.max {
					ran, err := a.pool.RunOnce(ctx)
					if err != nil {
						return err
					}
					if !ran {
						break
					}
					processed++
				}
			} else if processed, err = a.pool.Drain(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reaped %d, processed %d jobs\n", reaped, processed)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsStatusCmd, jobsListCmd, jobsDrainCmd)

	jobsListCmd.Flags().StringVar(&jobsFlags.engagementID, "engagement", "", "engagement id")
	jobsListCmd.Flags().StringVar(&jobsFlags.status, "status", "", "job status (pending, processing, completed, failed)")
	jobsDrainCmd.Flags().IntVar(&jobsFlags.max, "max", 0, "stop after this many jobs (0 runs until none is claimable)")
}

type jobTable []service.JobView

func (t jobTable) Header() []string {
	return []string{"JOB_ID", "TYPE", "ENGAGEMENT", "STATUS", "RETRIES", "CREATED", "COMPLETED", "ERROR"}
}

func (t jobTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, j := range t {
		completed := ""
		if j.CompletedAt != nil {
			completed = j.CompletedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			j.ID,
			string(j.JobType),
			j.EngagementID,
			string(j.Status),
			fmt.Sprint(j.RetryCount),
			j.CreatedAt.UTC().Format(time.RFC3339),
			completed,
			j.ErrorMessage,
		})
	}
	return rows
}
