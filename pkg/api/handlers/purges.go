package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"maturity-hq/steward/pkg/api/types"
	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/governance/purge"
)

type challengeRequest struct {
	EngagementID string `json:"engagement_id" validate:"required,max=128"`
}

// ChallengeResponse carries the token a purge request must echo.
type ChallengeResponse struct {
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expires_at"`
}

// createChallenge handles POST /v1/purges/challenge.
func (h *Handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := check(&req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ch, err := h.svc.IssuePurgeChallenge(r.Context(), caller(r), req.EngagementID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusCreated, ChallengeResponse{Challenge: ch.Token, ExpiresAt: ch.ExpiresAt})
}

// createPurge handles POST /v1/purges. A request equivalent to a purge
// already in flight is answered 202 with that job and deduplicated set.
func (h *Handler) createPurge(w http.ResponseWriter, r *http.Request) {
	var req purge.Request
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.svc.RequestPurge(r.Context(), caller(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusAccepted, sub)
}

// getPurge handles GET /v1/purges/{job_id}.
func (h *Handler) getPurge(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Job(r.Context(), chi.URLParam(r, "job_id"), governance.JobTypePurge)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, view)
}

// RecoverResponse reports a completed recovery.
type RecoverResponse struct {
	Status    string            `json:"status"`
	Recovered audit.PurgeCounts `json:"recovered"`
}

// recoverPurge handles POST /v1/purges/{job_id}/recover.
func (h *Handler) recoverPurge(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.RecoverPurge(r.Context(), caller(r), chi.URLParam(r, "job_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, RecoverResponse{Status: "recovered", Recovered: counts})
}
