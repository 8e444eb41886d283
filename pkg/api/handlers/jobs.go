package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"maturity-hq/steward/pkg/api/types"
	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/service"
)

type maintenanceParams struct {
	JobType string `query:"job_type" validate:"oneof=ttl_cleanup audit_retention"`
}

// createMaintenance handles POST /v1/maintenance/{job_type}.
func (h *Handler) createMaintenance(w http.ResponseWriter, r *http.Request) {
	p := maintenanceParams{JobType: chi.URLParam(r, "job_type")}
	if err := check(&p); err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.svc.RequestMaintenance(r.Context(), caller(r), governance.JobType(p.JobType))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusAccepted, sub)
}

// JobList is the body of GET /v1/jobs.
type JobList struct {
	Jobs []service.JobView `json:"jobs"`
}

// listJobs handles GET /v1/jobs?engagement_id=&status=.
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.svc.ListJobs(r.Context(), q.Get("engagement_id"), governance.JobStatus(q.Get("status")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, JobList{Jobs: views})
}
