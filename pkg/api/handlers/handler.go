package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"maturity-hq/steward/pkg/api/middleware"
	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/governance/gate"
	"maturity-hq/steward/pkg/governance/purge"
	"maturity-hq/steward/pkg/governance/query"
	"maturity-hq/steward/pkg/governance/service"
)

// Service is the governance service the handlers delegate to.
type Service interface {
	RequestExport(ctx context.Context, caller service.Caller, req service.ExportRequest) (*service.Submission, error)
	IssuePurgeChallenge(ctx context.Context, caller service.Caller, engagementID string) (*gate.Challenge, error)
	RequestPurge(ctx context.Context, caller service.Caller, req purge.Request) (*service.Submission, error)
	RecoverPurge(ctx context.Context, caller service.Caller, jobID string) (audit.PurgeCounts, error)
	RequestMaintenance(ctx context.Context, caller service.Caller, jobType governance.JobType) (*service.Submission, error)
	Job(ctx context.Context, id string, jobType governance.JobType) (*service.JobView, error)
	ListJobs(ctx context.Context, engagementID string, status governance.JobStatus) ([]service.JobView, error)
	QueryAudit(ctx context.Context, p query.Params) (*query.Page, error)
	AuditEvent(ctx context.Context, id string) (*service.AuditEvent, error)
	VerifyAudit(ctx context.Context, from, to string) (*audit.VerifyResult, error)
}

// Handler serves the /v1 governance API.
type Handler struct {
	svc      Service
	onVerify func(valid bool)
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithVerifyObserver sets a function called with the outcome of every
// audit range verification.
func WithVerifyObserver(fn func(valid bool)) Option {
	return func(h *Handler) {
		h.onVerify = fn
	}
}

// New creates the API handler.
func New(svc Service, opts ...Option) *Handler {
	h := &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "api.handlers"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /v1 endpoints on r.
//
//	POST /v1/exports
//	GET  /v1/exports/{job_id}
//	GET  /v1/exports/{job_id}/status
//	POST /v1/purges/challenge
//	POST /v1/purges
//	GET  /v1/purges/{job_id}
//	POST /v1/purges/{job_id}/recover
//	POST /v1/maintenance/{job_type}
//	GET  /v1/jobs
//	GET  /v1/audit-logs
//	GET  /v1/audit-logs/verify
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/exports", func(r chi.Router) {
			r.Post("/", h.createExport)
			r.Get("/{job_id}", h.getExport)
			r.Get("/{job_id}/status", h.getExportStatus)
		})
		r.Route("/purges", func(r chi.Router) {
			r.Post("/challenge", h.createChallenge)
			r.Post("/", h.createPurge)
			r.Get("/{job_id}", h.getPurge)
			r.Post("/{job_id}/recover", h.recoverPurge)
		})
		r.Post("/maintenance/{job_type}", h.createMaintenance)
		r.Get("/jobs", h.listJobs)
		r.Get("/audit-logs", h.queryAudit)
		r.Get("/audit-logs/verify", h.verifyAudit)
		r.Get("/audit-logs/{event_id}", h.getAuditEvent)
	})
}

func caller(r *http.Request) service.Caller {
	id := middleware.GetIdentity(r.Context())
	return service.Caller{Actor: id.Actor, Admin: id.Admin}
}
