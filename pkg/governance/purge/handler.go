package purge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/telemetry/tracing"
)

// AuditTrail is the part of the audit trail the purge handler needs.
type AuditTrail interface {
	Append(ctx context.Context, e audit.Entry) (string, error)
	PurgeOperational(ctx context.Context, engagementID, protectCorrelationID string, dryRun bool) (int64, error)
}

// CategoryCount is the soft-delete outcome of one category.
type CategoryCount struct {
	Affected int64 `json:"affected"` // newly soft-deleted in this run
	Total    int64 `json:"total"`    // soft-deleted or eligible after this run
}

// Handler executes purge jobs and recovery.
type Handler struct {
	business governance.BusinessStore
	jobs     governance.JobStore
	trail    AuditTrail
	clock    governance.Clock
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock sets the time source used for grace window checks.
func WithClock(clock governance.Clock) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler creates a purge handler.
func NewHandler(business governance.BusinessStore, jobs governance.JobStore, trail AuditTrail, opts ...Option) *Handler {
	h := &Handler{
		business: business,
		jobs:     jobs,
		trail:    trail,
		clock:    governance.SystemClock,
		tracer:   otel.Tracer("steward/purge"),
		logger:   slog.Default().With("component", "purge"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle implements jobs.Handler, dispatching on the job phase.
func (h *Handler) Handle(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
	if job.EngagementID == "" {
		return nil, governance.NewValidationError("engagement_id", "purge requires an engagement")
	}
	st, err := stateFromJob(job)
	if err != nil {
		return nil, err
	}

	ctx, span := h.tracer.Start(ctx, "purge."+phaseOf(job), trace.WithAttributes(
		attribute.String(tracing.AttrEngagementID, job.EngagementID),
		attribute.String(tracing.AttrCorrelationID, job.CorrelationID),
	))
	defer span.End()

	switch phaseOf(job) {
	case PhaseSoftDelete:
		return h.softDelete(ctx, job, st)
	case PhaseHardDelete:
		removed, err := h.HardDelete(ctx, st)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"state":        StateHardDeleted,
			"purge_job_id": st.PurgeJobID,
			"removed":      countsMap(removed),
		}, nil
	}
	return nil, governance.NewValidationError("phase", fmt.Sprintf("unknown purge phase %q", job.Param("phase")))
}

func phaseOf(job *governance.JobRecord) string {
	if p := job.Param("phase"); p != "" {
		return p
	}
	return PhaseSoftDelete
}

// softDelete hides the requested records, then either hard deletes inline
// or schedules the hard-delete phase at the end of the grace window.
func (h *Handler) softDelete(ctx context.Context, job *governance.JobRecord, st State) (map[string]any, error) {
	st.SoftDeletedAt = h.clock().UTC()

	counts := make(map[string]CategoryCount, len(st.Categories))
	affected := audit.PurgeCounts{}
	for _, cat := range st.Categories {
		c, err := h.softDeleteCategory(ctx, st, cat)
		if err != nil {
			return nil, err
		}
		counts[cat] = c
		affected[cat] = c.Affected
	}

	if err := h.appendEvent(ctx, st, audit.PurgeSoftDeleted{
		JobID:         st.PurgeJobID,
		Affected:      affected,
		RetentionDays: st.RetentionDays,
	}); err != nil {
		return nil, err
	}
	h.logger.Info("purge soft delete completed",
		"job_id", job.ID,
		"engagement_id", st.EngagementID,
		"categories", st.Categories,
	)

	result := map[string]any{
		"soft_deleted_at": st.SoftDeletedAt.Format(time.RFC3339Nano),
		"categories":      softCountsMap(counts),
	}

	if st.SkipGracePeriod {
		if err := h.appendEvent(ctx, st, audit.PurgeGraceSkipped{
			JobID:         st.PurgeJobID,
			RetentionDays: st.RetentionDays,
			Reason:        "administrative override",
		}); err != nil {
			return nil, err
		}
	}

	if st.Retention() == 0 {
		removed, err := h.HardDelete(ctx, st)
		if err != nil {
			return nil, err
		}
		result["state"] = StateHardDeleted
		result["removed"] = countsMap(removed)
		return result, nil
	}

	follow := &governance.JobRecord{
		JobType:       governance.JobTypePurge,
		EngagementID:  st.EngagementID,
		Actor:         st.Actor,
		CorrelationID: st.CorrelationID,
		Parameters:    st.hardDeleteParameters(),
		DedupKey:      "hard_delete:" + st.PurgeJobID,
		MaxRetries:    job.MaxRetries,
		CreatedAt:     st.SoftDeletedAt,
		AvailableAt:   st.HardDeleteAt(),
	}
	followID, _, err := h.jobs.CreateUnique(ctx, follow)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule hard delete: %w", err)
	}
	h.logger.Info("hard delete scheduled",
		"job_id", followID,
		"correlation_id", st.CorrelationID,
		"available_at", follow.AvailableAt,
	)

	result["state"] = StateSoftDeleted
	result["hard_delete_job_id"] = followID
	result["hard_delete_at"] = follow.AvailableAt.Format(time.RFC3339Nano)
	return result, nil
}

func (h *Handler) softDeleteCategory(ctx context.Context, st State, category string) (CategoryCount, error) {
	if category == governance.CategoryAuditLogs {
		// Audit events have no visibility flag; they are removed at hard
		// delete and only counted here.
		eligible, err := h.trail.PurgeOperational(ctx, st.EngagementID, st.CorrelationID, true)
		if err != nil {
			return CategoryCount{}, err
		}
		return CategoryCount{Total: eligible}, nil
	}

	var out CategoryCount
	for i, kind := range governance.CategoryKinds[category] {
		ids, err := h.business.RecordIDs(ctx, kind, st.EngagementID, governance.VisibilityVisible)
		if err != nil {
			return CategoryCount{}, err
		}
		n, err := h.business.SoftDelete(ctx, kind, ids)
		if err != nil {
			return CategoryCount{}, err
		}
		if i > 0 {
			continue
		}
		deleted, err := h.business.RecordIDs(ctx, kind, st.EngagementID, governance.VisibilityDeleted)
		if err != nil {
			return CategoryCount{}, err
		}
		out = CategoryCount{Affected: n, Total: int64(len(deleted))}
	}
	return out, nil
}

// HardDelete physically removes the soft-deleted records of a purge and
// records data_purge_completed. It refuses to run before the grace window
// has elapsed.
func (h *Handler) HardDelete(ctx context.Context, st State) (audit.PurgeCounts, error) {
	if st.SoftDeletedAt.IsZero() {
		return nil, governance.NewInvariantViolation("hard_delete_without_soft_delete",
			"purge %s has no soft-delete timestamp", st.PurgeJobID)
	}
	now := h.clock()
	if now.Before(st.HardDeleteAt()) {
		return nil, governance.NewInvariantViolation("hard_delete_before_grace",
			"purge %s may not hard delete before %s", st.PurgeJobID, st.HardDeleteAt().Format(time.RFC3339))
	}

	removed := audit.PurgeCounts{}
	for _, cat := range st.Categories {
		if cat == governance.CategoryAuditLogs {
			n, err := h.trail.PurgeOperational(ctx, st.EngagementID, st.CorrelationID, false)
			if err != nil {
				return nil, err
			}
			removed[cat] = n
			continue
		}
		for i, kind := range governance.CategoryKinds[cat] {
			ids, err := h.business.RecordIDs(ctx, kind, st.EngagementID, governance.VisibilityDeleted)
			if err != nil {
				return nil, err
			}
			n, err := h.business.HardDelete(ctx, kind, ids)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				removed[cat] = n
			}
		}
	}

	if err := h.appendEvent(ctx, st, audit.PurgeCompleted{JobID: st.PurgeJobID, Removed: removed}); err != nil {
		return nil, err
	}
	h.logger.Info("purge hard delete completed",
		"job_id", st.PurgeJobID,
		"engagement_id", st.EngagementID,
	)
	return removed, nil
}

// Recover restores the records of a purge that is still soft-deleted. The
// pending hard-delete job is claimed first so no worker can run it
// concurrently.
func (h *Handler) Recover(ctx context.Context, purgeJobID, actor string) (audit.PurgeCounts, error) {
	root, err := h.jobs.Get(ctx, purgeJobID)
	if err != nil {
		return nil, err
	}
	if root.JobType != governance.JobTypePurge || phaseOf(root) != PhaseSoftDelete {
		return nil, governance.NewValidationError("job_id", "not a purge job")
	}
	hardID, _ := root.Result["hard_delete_job_id"].(string)
	if root.Status != governance.JobStatusCompleted || root.Result["state"] != StateSoftDeleted || hardID == "" {
		return nil, governance.NewInvariantViolation("recover_not_soft_deleted",
			"purge %s is not in the soft_deleted state", purgeJobID)
	}

	now := h.clock()
	hard, err := h.jobs.Claim(ctx, hardID, "recover:"+actor, now)
	if errors.Is(err, governance.ErrNotClaimable) {
		return nil, governance.NewInvariantViolation("recover_not_soft_deleted",
			"purge %s is no longer recoverable", purgeJobID)
	}
	if err != nil {
		return nil, err
	}

	st, err := stateFromJob(hard)
	if err == nil {
		st.Actor = actor
		var recovered audit.PurgeCounts
		recovered, err = h.restore(ctx, st)
		if err == nil {
			return recovered, h.finishRecovery(ctx, hard, st, recovered)
		}
	}

	// Release the hard-delete job so the purge proceeds as scheduled.
	release := h.jobs.Update(context.WithoutCancel(ctx), hard.ID, hard.ClaimID, governance.JobUpdate{
		Status:       governance.JobStatusPending,
		ErrorMessage: "recovery failed",
		At:           now,
		AvailableAt:  hard.AvailableAt,
	})
	if release != nil {
		h.logger.Error("failed to release hard delete job", "job_id", hard.ID, "error", release)
	}
	return nil, err
}

func (h *Handler) restore(ctx context.Context, st State) (audit.PurgeCounts, error) {
	recovered := audit.PurgeCounts{}
	for _, cat := range st.Categories {
		if cat == governance.CategoryAuditLogs {
			recovered[cat] = 0
			continue
		}
		for i, kind := range governance.CategoryKinds[cat] {
			ids, err := h.business.RecordIDs(ctx, kind, st.EngagementID, governance.VisibilityDeleted)
			if err != nil {
				return nil, err
			}
			n, err := h.business.Recover(ctx, kind, ids)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				recovered[cat] = n
			}
		}
	}
	return recovered, nil
}

func (h *Handler) finishRecovery(ctx context.Context, hard *governance.JobRecord, st State, recovered audit.PurgeCounts) error {
	err := h.jobs.Update(context.WithoutCancel(ctx), hard.ID, hard.ClaimID, governance.JobUpdate{
		Status: governance.JobStatusCompleted,
		Result: map[string]any{
			"state":        StateRecovered,
			"purge_job_id": st.PurgeJobID,
			"recovered":    countsMap(recovered),
		},
		At: h.clock(),
	})
	if err != nil {
		return fmt.Errorf("failed to close hard delete job: %w", err)
	}
	if err := h.appendEvent(ctx, st, audit.PurgeRecovered{JobID: st.PurgeJobID, Recovered: recovered}); err != nil {
		return err
	}
	h.logger.Info("purge recovered",
		"job_id", st.PurgeJobID,
		"engagement_id", st.EngagementID,
		"actor", st.Actor,
	)
	return nil
}

func (h *Handler) appendEvent(ctx context.Context, st State, d audit.Details) error {
	_, err := h.trail.Append(ctx, audit.Entry{
		Actor:         st.Actor,
		EngagementID:  st.EngagementID,
		CorrelationID: st.CorrelationID,
		Details:       d,
	})
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", d.EventType(), err)
	}
	return nil
}

func countsMap(c audit.PurgeCounts) map[string]any {
	m := make(map[string]any, len(c))
	for k, v := range c {
		m[k] = v
	}
	return m
}

func softCountsMap(c map[string]CategoryCount) map[string]any {
	m := make(map[string]any, len(c))
	for k, v := range c {
		m[k] = map[string]any{"affected": v.Affected, "total": v.Total}
	}
	return m
}
