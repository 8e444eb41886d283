package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"maturity-hq/steward/pkg/governance/service"
)

var challengeCmd = &cobra.Command{
	Use:   "challenge ENGAGEMENT_ID",
	Short: "Issue a purge confirmation token",
	Long: `Issue the confirmation token a purge request must echo back. The token
is single use and expires after gate.challenge_ttl.

The server only sees tokens issued here when both share the redis
challenge store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if a.cfg.Gate.Backend != "redis" {
				return errors.New("challenge requires gate.backend redis; in-memory tokens die with this process")
			}
			ch, err := a.service.IssuePurgeChallenge(ctx, service.Caller{Actor: rootFlags.actor}, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, challengeOutput{Challenge: ch.Token, ExpiresAt: ch.ExpiresAt})
		})
	},
}

func init() {
	rootCmd.AddCommand(challengeCmd)
}

type challengeOutput struct {
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c challengeOutput) Header() []string { return []string{"CHALLENGE", "EXPIRES_AT"} }

func (c challengeOutput) Rows() [][]string {
	return [][]string{{c.Challenge, c.ExpiresAt.UTC().Format(time.RFC3339)}}
}
