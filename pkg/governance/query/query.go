// Package query validates audit log queries and applies their defaults.
package query

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"maturity-hq/steward/pkg/governance"
)

const (
	// DefaultLimit is applied when a query names no limit.
	DefaultLimit = 100

	// MaxLimit is the largest page a query may request.
	MaxLimit = 10000
)

// Params are the raw audit query parameters of a request.
type Params struct {
	EngagementID  string
	From          string // RFC3339
	To            string // RFC3339
	Actions       []string
	CorrelationID string
	Limit         int
	Offset        int
	Order         string // asc or desc, default desc
}

// KnownEventTypes returns every event type a query may filter on.
func KnownEventTypes() []governance.EventType {
	return append(governance.GovernanceEventTypes(), governance.EventActivity)
}

// Build validates p and returns the store query.
func Build(p Params) (*governance.AuditQuery, error) {
	q := &governance.AuditQuery{
		EngagementID:  strings.TrimSpace(p.EngagementID),
		CorrelationID: strings.TrimSpace(p.CorrelationID),
		Limit:         p.Limit,
		Offset:        p.Offset,
		SortOrder:     strings.ToLower(p.Order),
	}

	var err error
	if q.StartTime, err = parseTime("from", p.From); err != nil {
		return nil, err
	}
	if q.EndTime, err = parseTime("to", p.To); err != nil {
		return nil, err
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return nil, governance.NewValidationError("from", "from must not be after to")
	}

	for _, a := range p.Actions {
		for _, part := range strings.Split(a, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			et := governance.EventType(part)
			if !slices.Contains(KnownEventTypes(), et) {
				return nil, governance.NewValidationError("action", fmt.Sprintf("unknown action %q", part))
			}
			if !slices.Contains(q.EventTypes, et) {
				q.EventTypes = append(q.EventTypes, et)
			}
		}
	}

	switch {
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit < 0 || q.Limit > MaxLimit:
		return nil, governance.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxLimit))
	}
	if q.Offset < 0 {
		return nil, governance.NewValidationError("offset", "must not be negative")
	}
	switch q.SortOrder {
	case "":
		q.SortOrder = "desc"
	case "asc", "desc":
	default:
		return nil, governance.NewValidationError("order", "must be asc or desc")
	}
	return q, nil
}

func parseTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, governance.NewValidationError(field, "must be an RFC3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

// Page is one page of audit events.
type Page struct {
	Events []*governance.AuditEvent `json:"events"`
	Total  int64                    `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// Source is where pages are read from.
type Source interface {
	Query(ctx context.Context, q *governance.AuditQuery) ([]*governance.AuditEvent, error)
	Count(ctx context.Context, q *governance.AuditQuery) (int64, error)
}

// Run validates p and reads one page from src.
func Run(ctx context.Context, src Source, p Params) (*Page, error) {
	q, err := Build(p)
	if err != nil {
		return nil, err
	}
	events, err := src.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	total, err := src.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*governance.AuditEvent{}
	}
	return &Page{Events: events, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}
