package retention

import (
	"context"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/jobs"
)

// CleanupHandler returns the ttl_cleanup job handler: a full sweep.
func CleanupHandler(s *Sweeper) jobs.Handler {
	return jobs.HandlerFunc(func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
		return runSweep(ctx, s, job, job.ParamStrings("categories")...)
	})
}

// AuditRetentionHandler returns the audit_retention job handler, which
// sweeps only the audit_logs category.
func AuditRetentionHandler(s *Sweeper) jobs.Handler {
	return jobs.HandlerFunc(func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
		return runSweep(ctx, s, job, governance.CategoryAuditLogs)
	})
}

func runSweep(ctx context.Context, s *Sweeper, job *governance.JobRecord, categories ...string) (map[string]any, error) {
	report, err := s.SweepAs(ctx, Run{Actor: job.Actor, CorrelationID: job.CorrelationID}, categories...)
	if err != nil {
		return nil, err
	}
	deleted := make(map[string]any, len(report.Categories))
	for _, c := range report.Categories {
		if c.Skipped == "" {
			deleted[c.Category] = c.Deleted
		}
	}
	return map[string]any{
		"deleted":     report.Deleted(),
		"categories":  deleted,
		"duration_ms": report.Duration.Milliseconds(),
	}, nil
}
