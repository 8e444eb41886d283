package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"maturity-hq/steward/pkg/api/types"
	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/query"
)

// queryAudit handles GET /v1/audit-logs. action may be repeated or
// comma separated.
func (h *Handler) queryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := query.Params{
		EngagementID:  q.Get("engagement_id"),
		From:          q.Get("from"),
		To:            q.Get("to"),
		Actions:       q["action"],
		CorrelationID: q.Get("correlation_id"),
		Order:         q.Get("order"),
	}
	var err error
	if p.Limit, err = intParam(q, "limit"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if p.Offset, err = intParam(q, "offset"); err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.svc.QueryAudit(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	types.WriteJSON(w, http.StatusOK, page)
}

// verifyAudit handles GET /v1/audit-logs/verify?from=&to=.
func (h *Handler) verifyAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.VerifyAudit(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !res.Valid {
		h.logger.WarnContext(r.Context(), "audit verification found tampered events",
			"checked", res.Checked,
			"failures", len(res.Failures),
		)
	}
	if h.onVerify != nil {
		h.onVerify(res.Valid)
	}
	types.WriteJSON(w, http.StatusOK, res)
}

// getAuditEvent handles GET /v1/audit-logs/{event_id}.
func (h *Handler) getAuditEvent(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AuditEvent(r.Context(), chi.URLParam(r, "event_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !res.IntegrityValid {
		h.logger.WarnContext(r.Context(), "audit event failed integrity verification", "event_id", res.Event.ID)
	}
	types.WriteJSON(w, http.StatusOK, res)
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, governance.NewValidationError(name, name+" must be an integer")
	}
	return n, nil
}
