// Package service is the request-facing entry point of governance
// operations. It validates requests, enforces confirmation and
// de-duplication, and writes pending jobs for the worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/governance/export"
	"maturity-hq/steward/pkg/governance/gate"
	"maturity-hq/steward/pkg/governance/purge"
	"maturity-hq/steward/pkg/governance/query"
)

// DefaultMaxRetries is stamped on submitted jobs.
const DefaultMaxRetries = 3

// DefaultListLimit bounds job listings by status.
const DefaultListLimit = 100

// Caller identifies who makes a request. Identity is established upstream.
type Caller struct {
	Actor string
	Admin bool
}

// Waker is notified when a job is submitted.
type Waker interface {
	Wake()
}

// Config configures the service.
type Config struct {
	MaxRetries int
}

// Service implements governance requests.
type Service struct {
	jobs     governance.JobStore
	business governance.BusinessStore
	gate     *gate.Gate
	trail    *audit.Trail
	purger   *purge.Handler
	waker    Waker
	cfg      Config
	clock    governance.Clock
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source stamped on jobs.
func WithClock(clock governance.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithWaker sets the component woken on submission, usually the worker pool.
func WithWaker(w Waker) Option {
	return func(s *Service) {
		s.waker = w
	}
}

// New creates a service.
func New(cfg Config, jobs governance.JobStore, business governance.BusinessStore, g *gate.Gate, trail *audit.Trail, purger *purge.Handler, opts ...Option) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	s := &Service{
		jobs:     jobs,
		business: business,
		gate:     g,
		trail:    trail,
		purger:   purger,
		cfg:      cfg,
		clock:    governance.SystemClock,
		logger:   slog.Default().With("component", "service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submission is the outcome of a job request.
type Submission struct {
	JobID        string               `json:"job_id"`
	Status       governance.JobStatus `json:"status"`
	Deduplicated bool                 `json:"deduplicated"`
}

// ExportRequest requests an engagement export.
type ExportRequest struct {
	EngagementID string         `json:"engagement_id" validate:"required,max=128"`
	Options      export.Options `json:"options"`
}

// RequestExport submits an export job. An equivalent export still in flight
// is returned instead of a new one.
func (s *Service) RequestExport(ctx context.Context, caller Caller, req ExportRequest) (*Submission, error) {
	req.EngagementID = strings.TrimSpace(req.EngagementID)
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	if err := s.requireEngagement(ctx, req.EngagementID); err != nil {
		return nil, err
	}

	params := req.Options.Parameters()
	dedup := gate.DedupKey(req.EngagementID, governance.JobTypeExport,
		fmt.Sprintf("include_documents=%t", req.Options.IncludeDocuments),
		"format="+params["format"].(string),
	)

	job := s.newJob(governance.JobTypeExport, caller, req.EngagementID, params)
	job.DedupKey = dedup
	sub, err := s.submit(ctx, job)
	if err != nil || sub.Deduplicated {
		return sub, err
	}

	s.record(ctx, caller, req.EngagementID, sub.JobID, audit.ExportRequested{
		JobID:            sub.JobID,
		IncludeDocuments: req.Options.IncludeDocuments,
		Format:           params["format"].(string),
	})
	return sub, nil
}

// IssuePurgeChallenge issues the confirmation challenge a purge request
// must echo. Issuing again replaces the previous challenge.
func (s *Service) IssuePurgeChallenge(ctx context.Context, caller Caller, engagementID string) (*gate.Challenge, error) {
	engagementID = strings.TrimSpace(engagementID)
	if engagementID == "" {
		return nil, governance.NewValidationError("engagement_id", "engagement_id is required")
	}
	if err := s.requireEngagement(ctx, engagementID); err != nil {
		return nil, err
	}
	ch, err := s.gate.IssueChallenge(ctx, engagementID, gate.OperationPurge)
	if err != nil {
		return nil, err
	}
	s.record(ctx, caller, engagementID, "", audit.PurgeChallengeIssued{
		Operation: gate.OperationPurge,
		ExpiresAt: ch.ExpiresAt.Format(time.RFC3339),
	})
	return ch, nil
}

// RequestPurge submits a purge job. De-duplication is checked before the
// confirmation token so a retried submission does not burn a new token.
func (s *Service) RequestPurge(ctx context.Context, caller Caller, req purge.Request) (*Submission, error) {
	req.Normalize()
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.SkipGracePeriod && !caller.Admin {
		return nil, governance.NewValidationError("skip_grace_period", "skipping the grace period requires an administrator")
	}
	if err := s.requireEngagement(ctx, req.EngagementID); err != nil {
		return nil, err
	}

	dedup := gate.DedupKey(req.EngagementID, governance.JobTypePurge, req.Categories...)
	if existing, err := s.jobs.FindActive(ctx, dedup); err == nil {
		s.logger.Info("duplicate purge joined in-flight job", "job_id", existing.ID, "engagement_id", req.EngagementID)
		return &Submission{JobID: existing.ID, Status: existing.Status, Deduplicated: true}, nil
	} else if !errors.Is(err, governance.ErrNotFound) {
		return nil, err
	}

	ok, err := s.gate.Validate(ctx, req.EngagementID, gate.OperationPurge, req.ConfirmationToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("purge confirmation rejected", "engagement_id", req.EngagementID, "actor", caller.Actor)
		return nil, &governance.ConflictError{Reason: "invalid or expired confirmation token", Cause: governance.ErrConfirmationRejected}
	}

	job := s.newJob(governance.JobTypePurge, caller, req.EngagementID, req.Parameters())
	job.DedupKey = dedup
	job.ConfirmationTokenHash = audit.HashToken(req.ConfirmationToken)
	sub, err := s.submit(ctx, job)
	if err != nil || sub.Deduplicated {
		return sub, err
	}

	s.record(ctx, caller, req.EngagementID, sub.JobID, audit.PurgeRequested{
		JobID:           sub.JobID,
		Categories:      req.Categories,
		RetentionDays:   req.RetentionDays,
		SkipGracePeriod: req.SkipGracePeriod,
	})
	return sub, nil
}

// RecoverPurge restores the records of a purge still in its grace window.
func (s *Service) RecoverPurge(ctx context.Context, caller Caller, jobID string) (audit.PurgeCounts, error) {
	return s.purger.Recover(ctx, jobID, caller.Actor)
}

// RequestMaintenance submits an on-demand ttl_cleanup or audit_retention
// job. Only one of each runs at a time.
func (s *Service) RequestMaintenance(ctx context.Context, caller Caller, jobType governance.JobType) (*Submission, error) {
	if jobType != governance.JobTypeTTLCleanup && jobType != governance.JobTypeAuditRetention {
		return nil, governance.NewValidationError("job_type", fmt.Sprintf("%q is not a maintenance job", jobType))
	}
	job := s.newJob(jobType, caller, "", nil)
	job.DedupKey = gate.DedupKey("", jobType)
	return s.submit(ctx, job)
}

func (s *Service) newJob(t governance.JobType, caller Caller, engagementID string, params map[string]any) *governance.JobRecord {
	now := s.clock()
	return &governance.JobRecord{
		JobType:      t,
		EngagementID: engagementID,
		Actor:        caller.Actor,
		Status:       governance.JobStatusPending,
		Parameters:   params,
		MaxRetries:   s.cfg.MaxRetries,
		CreatedAt:    now,
		AvailableAt:  now,
	}
}

func (s *Service) submit(ctx context.Context, job *governance.JobRecord) (*Submission, error) {
	id, created, err := s.jobs.CreateUnique(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s job: %w", job.JobType, err)
	}
	if !created {
		existing, err := s.jobs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		s.logger.Info("duplicate request joined in-flight job",
			"job_id", id,
			"job_type", job.JobType,
			"engagement_id", job.EngagementID,
		)
		return &Submission{JobID: id, Status: existing.Status, Deduplicated: true}, nil
	}

	s.logger.Info("job submitted",
		"job_id", id,
		"job_type", job.JobType,
		"engagement_id", job.EngagementID,
		"actor", job.Actor,
	)
	if s.waker != nil {
		s.waker.Wake()
	}
	return &Submission{JobID: id, Status: governance.JobStatusPending}, nil
}

func (s *Service) requireEngagement(ctx context.Context, engagementID string) error {
	if s.business == nil {
		return nil
	}
	_, err := s.business.GetEngagement(ctx, engagementID)
	return err
}

func (s *Service) record(ctx context.Context, caller Caller, engagementID, correlationID string, d audit.Details) {
	_, err := s.trail.Append(ctx, audit.Entry{
		Actor:         caller.Actor,
		EngagementID:  engagementID,
		CorrelationID: correlationID,
		Details:       d,
	})
	if err != nil {
		s.logger.Error("failed to record audit event", "event_type", d.EventType(), "error", err)
	}
}

// JobView is the sanitized, user-visible view of a job.
type JobView struct {
	ID           string               `json:"job_id"`
	JobType      governance.JobType   `json:"job_type"`
	EngagementID string               `json:"engagement_id,omitempty"`
	Status       governance.JobStatus `json:"status"`
	Parameters   map[string]any       `json:"parameters,omitempty"`
	Result       map[string]any       `json:"result,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	RetryCount   int                  `json:"retry_count"`
	CreatedAt    time.Time            `json:"created_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// NewJobView builds the view of job.
func NewJobView(job *governance.JobRecord) JobView {
	return JobView{
		ID:           job.ID,
		JobType:      job.JobType,
		EngagementID: job.EngagementID,
		Status:       job.Status,
		Parameters:   job.Parameters,
		Result:       job.Result,
		ErrorMessage: job.ErrorMessage,
		RetryCount:   job.RetryCount,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// Job returns the view of a job. When jobType is set, a job of another type
// is reported as not found.
func (s *Service) Job(ctx context.Context, id string, jobType governance.JobType) (*JobView, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if jobType != "" && job.JobType != jobType {
		return nil, fmt.Errorf("%s job %s: %w", jobType, id, governance.ErrNotFound)
	}
	v := NewJobView(job)
	return &v, nil
}

// ListJobs lists jobs of an engagement, or jobs in a status when no
// engagement is named.
func (s *Service) ListJobs(ctx context.Context, engagementID string, status governance.JobStatus) ([]JobView, error) {
	if status != "" && !status.Valid() {
		return nil, governance.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	var (
		jobs []*governance.JobRecord
		err  error
	)
	switch {
	case engagementID != "":
		jobs, err = s.jobs.ListByEngagement(ctx, engagementID, status)
	case status != "":
		jobs, err = s.jobs.ListByStatus(ctx, status, DefaultListLimit)
	default:
		return nil, governance.NewValidationError("engagement_id", "engagement_id or status is required")
	}
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, NewJobView(j))
	}
	return views, nil
}

// QueryAudit returns one page of audit events.
func (s *Service) QueryAudit(ctx context.Context, p query.Params) (*query.Page, error) {
	return query.Run(ctx, s.trail, p)
}

// AuditEvent is one audit event with the outcome of verifying its tag.
type AuditEvent struct {
	Event          *governance.AuditEvent `json:"event"`
	IntegrityValid bool                   `json:"integrity_valid"`
}

// AuditEvent returns one event after verifying its integrity tag. A tag
// mismatch is reported in the result, not as an error.
func (s *Service) AuditEvent(ctx context.Context, id string) (*AuditEvent, error) {
	ev, err := s.trail.GetVerified(ctx, id)
	if governance.IsIntegrity(err) && ev != nil {
		return &AuditEvent{Event: ev}, nil
	}
	if err != nil {
		return nil, err
	}
	return &AuditEvent{Event: ev, IntegrityValid: true}, nil
}

// VerifyAudit verifies every event in [from, to]. An empty from starts at
// the epoch; an empty to ends now.
func (s *Service) VerifyAudit(ctx context.Context, from, to string) (*audit.VerifyResult, error) {
	start := time.Unix(0, 0).UTC()
	end := s.clock()
	var err error
	if from != "" {
		if start, err = time.Parse(time.RFC3339Nano, from); err != nil {
			return nil, governance.NewValidationError("from", "must be an RFC3339 timestamp")
		}
	}
	if to != "" {
		if end, err = time.Parse(time.RFC3339Nano, to); err != nil {
			return nil, governance.NewValidationError("to", "must be an RFC3339 timestamp")
		}
	}
	return s.trail.VerifyRange(ctx, start, end)
}
