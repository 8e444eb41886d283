// Package purge implements the two-phase engagement purge: soft delete,
// a retention grace window, then hard delete, with recovery while records
// are only soft-deleted.
package purge

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"maturity-hq/steward/pkg/governance"
)

// Phases of a purge job.
const (
	PhaseSoftDelete = "soft_delete"
	PhaseHardDelete = "hard_delete"
)

// States reported in purge job results.
const (
	StateSoftDeleted = "soft_deleted"
	StateHardDeleted = "hard_deleted"
	StateRecovered   = "recovered"
)

// MaxRetentionDays bounds the grace window.
const MaxRetentionDays = 3650

// MaxReasonLength bounds the free-text reason.
const MaxReasonLength = 500

// Request is a purge request. It is persisted only as job parameters; the
// confirmation token is never stored.
type Request struct {
	EngagementID      string   `json:"engagement_id" validate:"required,max=128"`
	Categories        []string `json:"categories" validate:"required,min=1,dive,oneof=assessments documents findings audit_logs"`
	RetentionDays     int      `json:"retention_days" validate:"gte=0,lte=3650"`
	Reason            string   `json:"reason" validate:"max=500"`
	ConfirmationToken string   `json:"confirmation_token" validate:"required"`
	SkipGracePeriod   bool     `json:"skip_grace_period"`
}

// Normalize trims the request and sorts and de-duplicates categories.
func (r *Request) Normalize() {
	r.EngagementID = strings.TrimSpace(r.EngagementID)
	r.Reason = strings.TrimSpace(r.Reason)
	cats := make([]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}
	slices.Sort(cats)
	r.Categories = slices.Compact(cats)
}

// Validate checks the request fields that do not depend on the gate.
func (r *Request) Validate() error {
	if r.EngagementID == "" {
		return governance.NewValidationError("engagement_id", "engagement_id is required")
	}
	if len(r.Categories) == 0 {
		return governance.NewValidationError("categories", "at least one category is required")
	}
	for _, c := range r.Categories {
		if !slices.Contains(governance.PurgeCategories(), c) {
			return governance.NewValidationError("categories", fmt.Sprintf("unknown category %q", c))
		}
	}
	if r.RetentionDays < 0 || r.RetentionDays > MaxRetentionDays {
		return governance.NewValidationError("retention_days", fmt.Sprintf("must be between 0 and %d", MaxRetentionDays))
	}
	if len(r.Reason) > MaxReasonLength {
		return governance.NewValidationError("reason", fmt.Sprintf("must be at most %d characters", MaxReasonLength))
	}
	return nil
}

// Parameters returns the job parameters of the soft-delete phase.
func (r *Request) Parameters() map[string]any {
	return map[string]any{
		"phase":             PhaseSoftDelete,
		"categories":        slices.Clone(r.Categories),
		"retention_days":    r.RetentionDays,
		"reason":            r.Reason,
		"skip_grace_period": r.SkipGracePeriod,
	}
}

// State is the persisted progress of one purge, carried between phases in
// job parameters.
type State struct {
	PurgeJobID      string // The soft-delete job, which roots the correlation
	EngagementID    string
	CorrelationID   string
	Actor           string
	Categories      []string
	RetentionDays   int
	SkipGracePeriod bool
	SoftDeletedAt   time.Time
}

// Retention returns the effective grace window. An administrative override
// waives it.
func (s State) Retention() time.Duration {
	if s.SkipGracePeriod {
		return 0
	}
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// HardDeleteAt returns the earliest time hard delete may run.
func (s State) HardDeleteAt() time.Time {
	return s.SoftDeletedAt.Add(s.Retention())
}

func stateFromJob(job *governance.JobRecord) (State, error) {
	st := State{
		PurgeJobID:      job.ID,
		EngagementID:    job.EngagementID,
		CorrelationID:   job.CorrelationID,
		Actor:           job.Actor,
		Categories:      job.ParamStrings("categories"),
		SkipGracePeriod: job.ParamBool("skip_grace_period"),
	}
	if id := job.Param("purge_job_id"); id != "" {
		st.PurgeJobID = id
	}
	days, _ := job.ParamInt("retention_days")
	st.RetentionDays = days
	if at, ok := job.ParamTime("soft_deleted_at"); ok {
		st.SoftDeletedAt = at
	}

	req := Request{EngagementID: st.EngagementID, Categories: st.Categories, RetentionDays: days}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return State{}, err
	}
	st.Categories = req.Categories
	return st, nil
}

func (s State) hardDeleteParameters() map[string]any {
	return map[string]any{
		"phase":             PhaseHardDelete,
		"purge_job_id":      s.PurgeJobID,
		"categories":        slices.Clone(s.Categories),
		"retention_days":    s.RetentionDays,
		"skip_grace_period": s.SkipGracePeriod,
		"soft_deleted_at":   s.SoftDeletedAt.UTC().Format(time.RFC3339Nano),
	}
}
