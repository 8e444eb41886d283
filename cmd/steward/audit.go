package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"maturity-hq/steward/pkg/cli"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/governance/query"
	"maturity-hq/steward/pkg/governance/service"
)

var auditFlags struct {
	from          string
	to            string
	engagementID  string
	actions       []string
	correlationID string
	limit         int
	offset        int
	order         string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and verify the audit trail",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity tags of audit events",
	Long: `Recompute the HMAC of every audit event in a time range, or of every
event sharing a correlation id, and report the events that do not match.

Exits with status 3 when any event fails verification.

Examples:
  steward audit verify --from 2026-10-01T00:00:00Z --to 2026-10-31T23:59:59Z
  steward audit verify --correlation-id 6f1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var (
				res *audit.VerifyResult
				err error
			)
			if auditFlags.correlationID != "" {
				res, err = a.trail.VerifyCorrelation(ctx, auditFlags.correlationID)
			} else {
				res, err = a.service.VerifyAudit(ctx, auditFlags.from, auditFlags.to)
			}
			if err != nil {
				return err
			}
			if a.metrics != nil {
				a.metrics.VerificationFinished(res.Valid)
			}
			if err := printResult(cmd, verifyOutput{res}); err != nil {
				return err
			}
			if !res.Valid {
				return fmt.Errorf("%d of %d events failed verification: %w", len(res.Failures), res.Checked, cli.ErrIntegrity)
			}
			return nil
		})
	},
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List audit events",
	Long: `List audit events, newest first, filtered by engagement, event type,
time range or correlation id.

Examples:
  steward audit query --engagement eng-42
  steward audit query --action data_purged,data_purge_recovered --from 2026-10-01T00:00:00Z -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			page, err := a.service.QueryAudit(ctx, query.Params{
				EngagementID:  auditFlags.engagementID,
				From:          auditFlags.from,
				To:            auditFlags.to,
				Actions:       auditFlags.actions,
				CorrelationID: auditFlags.correlationID,
				Limit:         auditFlags.limit,
				Offset:        auditFlags.offset,
				Order:         auditFlags.order,
			})
			if err != nil {
				return err
			}
			return printResult(cmd, eventTable{page})
		})
	},
}

var auditGetCmd = &cobra.Command{
	Use:   "get EVENT_ID",
	Short: "Show one audit event and verify its integrity tag",
	Long: `Show one audit event after recomputing its HMAC.

Exits with status 3 when the event fails verification.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.service.AuditEvent(ctx, args[0])
			if err != nil {
				return err
			}
			if err := printResult(cmd, eventOutput{res}); err != nil {
				return err
			}
			if !res.IntegrityValid {
				return fmt.Errorf("event %s failed verification: %w", res.Event.ID, cli.ErrIntegrity)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditQueryCmd, auditGetCmd)

	for _, c := range []*cobra.Command{auditVerifyCmd, auditQueryCmd} {
		c.Flags().StringVar(&auditFlags.from, "from", "", "start of range, RFC3339 (inclusive)")
		c.Flags().StringVar(&auditFlags.to, "to", "", "end of range, RFC3339 (inclusive)")
		c.Flags().StringVar(&auditFlags.correlationID, "correlation-id", "", "restrict to one operation")
	}
	auditQueryCmd.Flags().StringVar(&auditFlags.engagementID, "engagement", "", "engagement id")
	auditQueryCmd.Flags().StringSliceVar(&auditFlags.actions, "action", nil, "event types (repeatable or comma separated)")
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", query.DefaultLimit, "page size")
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "page offset")
	auditQueryCmd.Flags().StringVar(&auditFlags.order, "order", "desc", "asc or desc")
}

type verifyOutput struct {
	*audit.VerifyResult
}

func (v verifyOutput) Header() []string { return []string{"VALID", "CHECKED", "FAILED_EVENTS"} }

func (v verifyOutput) Rows() [][]string {
	return [][]string{{
		fmt.Sprint(v.Valid),
		fmt.Sprint(v.Checked),
		strings.Join(v.Failures, " "),
	}}
}

type eventTable struct {
	*query.Page
}

func (t eventTable) Header() []string {
	return []string{"TIMESTAMP", "EVENT_TYPE", "ACTOR", "ENGAGEMENT", "CORRELATION_ID", "ID"}
}

func (t eventTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Events))
	for _, e := range t.Events {
		rows = append(rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.EventType),
			e.Actor,
			e.EngagementID,
			e.CorrelationID,
			e.ID,
		})
	}
	return rows
}

type eventOutput struct {
	*service.AuditEvent
}

func (e eventOutput) Header() []string {
	return []string{"TIMESTAMP", "EVENT_TYPE", "ACTOR", "ENGAGEMENT", "CORRELATION_ID", "VALID", "DETAILS"}
}

func (e eventOutput) Rows() [][]string {
	ev := e.Event
	details, _ := json.Marshal(ev.Details)
	return [][]string{{
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		string(ev.EventType),
		ev.Actor,
		ev.EngagementID,
		ev.CorrelationID,
		fmt.Sprint(e.IntegrityValid),
		string(details),
	}}
}
