package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"maturity-hq/steward/pkg/api/types"
	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/service"
)

// createExport handles POST /v1/exports.
func (h *Handler) createExport(w http.ResponseWriter, r *http.Request) {
	var req service.ExportRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.svc.RequestExport(r.Context(), caller(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusAccepted, sub)
}

// getExport handles GET /v1/exports/{job_id}.
func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Job(r.Context(), chi.URLParam(r, "job_id"), governance.JobTypeExport)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, view)
}

// ExportStatus is the polling view of an export job.
type ExportStatus struct {
	JobID        string               `json:"job_id"`
	Status       governance.JobStatus `json:"status"`
	Location     string               `json:"location,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// getExportStatus handles GET /v1/exports/{job_id}/status. The artifact
// location is reported once the export has completed.
func (h *Handler) getExportStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Job(r.Context(), chi.URLParam(r, "job_id"), governance.JobTypeExport)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st := ExportStatus{
		JobID:        view.ID,
		Status:       view.Status,
		ErrorMessage: view.ErrorMessage,
		CompletedAt:  view.CompletedAt,
	}
	if view.Status == governance.JobStatusCompleted {
		st.Location, _ = view.Result["location"].(string)
	}
	types.WriteJSON(w, http.StatusOK, st)
}
