package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// TestCanTransition tests the job status DAG.
func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusPending, true},
		{JobStatusProcessing, JobStatusProcessing, false},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusFailed, false},
		{JobStatusCompleted, JobStatusPending, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
			err := CheckTransition(tt.from, tt.to)
			if tt.want && err != nil {
				t.Errorf("CheckTransition() unexpected error: %v", err)
			}
			if !tt.want && !IsInvariant(err) {
				t.Errorf("CheckTransition() expected InvariantViolation, got %v", err)
			}
		})
	}
}

// TestPublicMessage tests that job error messages never leak error text.
func TestPublicMessage(t *testing.T) {
	secret := "/var/lib/steward/secret.db: password=hunter2"

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"transient", NewTransientStoreError("business", "list", errors.New(secret)), "unavailable"},
		{"invariant", NewInvariantViolation("rule", "%s", secret), "not permitted"},
		{"integrity", NewIntegrityError("ev-1", secret), "integrity"},
		{"not found", fmt.Errorf("engagement %s: %w", secret, ErrNotFound), "not found"},
		{"timeout", ErrExecutionTimeout, "maximum execution time"},
		{"deadline", fmt.Errorf("%s: %w", secret, context.DeadlineExceeded), "unavailable"},
		{"other", errors.New(secret), "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := PublicMessage(JobTypeExport, tt.err)
			if !strings.Contains(msg, tt.contains) {
				t.Errorf("PublicMessage() = %q, want it to contain %q", msg, tt.contains)
			}
			if strings.Contains(msg, "hunter2") || strings.Contains(msg, "/var/lib") {
				t.Errorf("PublicMessage() leaked error detail: %q", msg)
			}
		})
	}

	if PublicMessage(JobTypePurge, nil) != "" {
		t.Error("PublicMessage(nil) should be empty")
	}
}

// TestErrorClassification tests errors.As based helpers through wrapping.
func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewValidationError("categories", "unknown category"))
	if !IsValidation(wrapped) {
		t.Error("IsValidation() should see through wrapping")
	}
	if IsTransient(wrapped) {
		t.Error("validation errors are not transient")
	}

	ve := &ValidationError{Field: "confirmation_token", Message: "rejected", Cause: ErrConfirmationRejected}
	if !errors.Is(ve, ErrConfirmationRejected) {
		t.Error("ValidationError should unwrap to its cause")
	}
}

// TestRetentionPolicy_Sweepable tests that primary business data is never sweepable.
func TestRetentionPolicy_Sweepable(t *testing.T) {
	tests := []struct {
		policy RetentionPolicy
		want   bool
	}{
		{RetentionPolicy{Category: CategoryOperationalLogs, TTL: time.Hour, Enabled: true}, true},
		{RetentionPolicy{Category: CategoryOperationalLogs, TTL: time.Hour, Enabled: false}, false},
		{RetentionPolicy{Category: CategoryTempData, TTL: 0, Enabled: true}, false},
		{RetentionPolicy{Category: CategoryAssessments, TTL: time.Hour, Enabled: true}, false},
		{RetentionPolicy{Category: CategoryDocuments, TTL: time.Hour, Enabled: true}, false},
	}

	for _, tt := range tests {
		if got := tt.policy.Sweepable(); got != tt.want {
			t.Errorf("%+v.Sweepable() = %v, want %v", tt.policy, got, tt.want)
		}
	}
}

// TestAuditQuery_Matches tests in-memory audit filtering.
func TestAuditQuery_Matches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := &AuditEvent{
		ID:            "ev-1",
		EventType:     EventActivity,
		Timestamp:     now,
		EngagementID:  "eng-1",
		CorrelationID: "job-1",
	}
	start := now
	end := now

	tests := []struct {
		name  string
		query *AuditQuery
		want  bool
	}{
		{"nil query", nil, true},
		{"inclusive range", &AuditQuery{StartTime: &start, EndTime: &end}, true},
		{"other engagement", &AuditQuery{EngagementID: "eng-2"}, false},
		{"type filter", &AuditQuery{EventTypes: []EventType{EventPurgeCompleted}}, false},
		{"excluded type", &AuditQuery{ExcludeEventTypes: []EventType{EventActivity}}, false},
		{"correlation", &AuditQuery{CorrelationID: "job-1"}, true},
		{"excluded correlation", &AuditQuery{ExcludeCorrelationID: "job-1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(ev); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestJobRecord_Clone tests that clones do not share maps.
func TestJobRecord_Clone(t *testing.T) {
	started := time.Now()
	job := &JobRecord{
		ID:         "job-1",
		Parameters: map[string]any{"categories": []string{"documents"}},
		StartedAt:  &started,
	}

	c := job.Clone()
	c.Parameters["categories"].([]string)[0] = "assessments"
	*c.StartedAt = started.Add(time.Hour)

	if job.Parameters["categories"].([]string)[0] != "documents" {
		t.Error("Clone() shares parameter slices")
	}
	if !job.StartedAt.Equal(started) {
		t.Error("Clone() shares timestamps")
	}
}

// TestFailedEvent tests *_failed event names per job type.
func TestFailedEvent(t *testing.T) {
	for _, jt := range AllJobTypes() {
		ev := FailedEvent(jt)
		if !strings.HasSuffix(string(ev), "_failed") {
			t.Errorf("FailedEvent(%s) = %s", jt, ev)
		}
		if !ev.Governance() {
			t.Errorf("FailedEvent(%s) should be a governance event", jt)
		}
	}
}

func TestJobRecord_Params(t *testing.T) {
	job := &JobRecord{Parameters: map[string]any{
		"format":            "json",
		"include_documents": true,
		"retention_days":    json.Number("30"),
		"categories":        []any{"documents", "assessments"},
		"soft_deleted_at":   "2026-04-01T09:00:00.5Z",
	}}

	if job.Param("format") != "json" || job.Param("missing") != "" {
		t.Error("Param() mismatch")
	}
	if !job.ParamBool("include_documents") || job.ParamBool("format") {
		t.Error("ParamBool() mismatch")
	}
	if n, ok := job.ParamInt("retention_days"); !ok || n != 30 {
		t.Errorf("ParamInt() = %d, %v", n, ok)
	}
	if _, ok := job.ParamInt("missing"); ok {
		t.Error("Expected missing int parameter to report false")
	}
	if got := job.ParamStrings("categories"); len(got) != 2 || got[0] != "documents" {
		t.Errorf("ParamStrings() = %v", got)
	}
	ts, ok := job.ParamTime("soft_deleted_at")
	if !ok || ts.Nanosecond() != 500000000 {
		t.Errorf("ParamTime() = %v, %v", ts, ok)
	}
}
