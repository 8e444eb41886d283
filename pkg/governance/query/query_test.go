package query

import (
	"context"
	"testing"
	"time"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/governance/storage"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		field   string
		inspect func(t *testing.T, q *governance.AuditQuery)
	}{
		{
			name:   "defaults",
			params: Params{},
			inspect: func(t *testing.T, q *governance.AuditQuery) {
				if q.Limit != DefaultLimit || q.SortOrder != "desc" || q.StartTime != nil {
					t.Errorf("Unexpected defaults: %+v", q)
				}
			},
		},
		{
			name:   "filters",
			params: Params{EngagementID: " eng-1 ", From: "2026-01-01T00:00:00Z", To: "2026-02-01T00:00:00+01:00", Actions: []string{"data_purge_completed,activity", "activity"}, Limit: MaxLimit, Order: "ASC"},
			inspect: func(t *testing.T, q *governance.AuditQuery) {
				if q.EngagementID != "eng-1" || q.Limit != MaxLimit || q.SortOrder != "asc" {
					t.Errorf("Unexpected query: %+v", q)
				}
				if len(q.EventTypes) != 2 {
					t.Errorf("Expected 2 event types, got %v", q.EventTypes)
				}
				if q.EndTime.Location() != time.UTC || q.EndTime.Hour() != 23 {
					t.Errorf("Expected to normalized to UTC, got %v", q.EndTime)
				}
			},
		},
		{name: "bad from", params: Params{From: "yesterday"}, field: "from"},
		{name: "from after to", params: Params{From: "2026-02-01T00:00:00Z", To: "2026-01-01T00:00:00Z"}, field: "from"},
		{name: "unknown action", params: Params{Actions: []string{"drop_table"}}, field: "action"},
		{name: "limit too large", params: Params{Limit: MaxLimit + 1}, field: "limit"},
		{name: "negative limit", params: Params{Limit: -1}, field: "limit"},
		{name: "negative offset", params: Params{Offset: -5}, field: "offset"},
		{name: "bad order", params: Params{Order: "sideways"}, field: "order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Build(tt.params)
			if tt.field != "" {
				ve, ok := err.(*governance.ValidationError)
				if !ok || ve.Field != tt.field {
					t.Fatalf("Build() error = %v, want field %s", err, tt.field)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			tt.inspect(t, q)
		})
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := start
	keys := &audit.StaticKeys{Current: governance.HMACKey{ID: "k1", Secret: []byte("query-test-secret")}}
	trail := audit.NewTrail(storage.NewMemoryAuditStore(), keys, audit.WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}))
	for i := 0; i < 5; i++ {
		if _, err := trail.Append(ctx, audit.Entry{Actor: "alice", EngagementID: "eng-1", CorrelationID: "c", Details: audit.Activity{Action: "view"}}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := Run(ctx, trail, Params{EngagementID: "eng-1", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if page.Total != 5 || len(page.Events) != 2 || page.Limit != 2 || page.Offset != 1 {
		t.Errorf("Unexpected page: total=%d events=%d", page.Total, len(page.Events))
	}
	if !page.Events[0].Timestamp.After(page.Events[1].Timestamp) {
		t.Error("Expected newest first")
	}

	empty, err := Run(ctx, trail, Params{EngagementID: "eng-none"})
	if err != nil || empty.Events == nil || empty.Total != 0 {
		t.Errorf("Expected empty non-nil page, got %+v, %v", empty, err)
	}
}
