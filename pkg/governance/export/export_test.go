package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"maturity-hq/steward/pkg/blob"
	"maturity-hq/steward/pkg/business"
	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/governance/storage"
)

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	business *business.MemoryStore
	sink     *blob.FSSink
	trail    *audit.Trail
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sink, err := blob.NewFSSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	keys := &audit.StaticKeys{Current: governance.HMACKey{ID: "k1", Secret: []byte("export-test-secret")}}
	f := &fixture{
		business: business.NewMemoryStore(),
		sink:     sink,
		trail:    audit.NewTrail(storage.NewMemoryAuditStore(), keys, audit.WithClock(func() time.Time { return fixedNow })),
	}
	f.handler = NewHandler(f.business, f.sink, f.trail, WithClock(func() time.Time { return fixedNow }))

	ctx := context.Background()
	must(t, f.business.CreateEngagement(ctx, governance.Engagement{ID: "eng-1", Name: "Acme 2026", ClientName: "Acme"}))
	must(t, f.business.AddAssessment(ctx, governance.Assessment{ID: "a1", EngagementID: "eng-1", Framework: "ISO 27001", Title: "Baseline"}))
	must(t, f.business.AddAnswer(ctx, governance.Answer{ID: "q1", AssessmentID: "a1", EngagementID: "eng-1", QuestionID: "A.5.1", Value: "2"}))
	must(t, f.business.AddDocument(ctx, governance.Document{ID: "d1", EngagementID: "eng-1", Filename: "isms.pdf"}))
	must(t, f.business.AddFinding(ctx, governance.Finding{ID: "f1", EngagementID: "eng-1", Title: "No ISMS scope", Severity: "medium"}))
	must(t, f.business.AddMember(ctx, governance.Member{EngagementID: "eng-1", UserID: "alice", Role: "lead"}))
	return f
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func exportJob(id string, params map[string]any) *governance.JobRecord {
	return &governance.JobRecord{
		ID:            id,
		JobType:       governance.JobTypeExport,
		EngagementID:  "eng-1",
		Actor:         "alice",
		CorrelationID: id,
		Parameters:    params,
	}
}

func TestHandler_ExportBundle(t *testing.T) {
	tests := []struct {
		name          string
		params        map[string]any
		wantDocuments int
		wantIndented  bool
	}{
		{"defaults", nil, 0, false},
		{"with documents", map[string]any{"include_documents": true}, 1, false},
		{"pretty", map[string]any{"format": FormatJSONPretty}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			result, err := f.handler.Handle(ctx, exportJob("job-1", tt.params))
			if err != nil {
				t.Fatalf("Handle() failed: %v", err)
			}
			if result["location"] != "exports/eng-1/job-1.json" || result["export_version"] != Version {
				t.Errorf("Unexpected result: %v", result)
			}

			data, err := f.sink.Get(ctx, "exports/eng-1/job-1.json")
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if result["checksum"] != blob.Checksum(data) {
				t.Error("Expected result checksum to match artifact")
			}
			if got := strings.Contains(string(data), "\n  "); got != tt.wantIndented {
				t.Errorf("Indented = %v, want %v", got, tt.wantIndented)
			}

			var b Bundle
			if err := json.Unmarshal(data, &b); err != nil {
				t.Fatalf("Unmarshal() failed: %v", err)
			}
			if b.ExportVersion != "1.0" || b.Engagement == nil || b.Engagement.ClientName != "Acme" {
				t.Errorf("Unexpected bundle header: %+v", b)
			}
			if !b.GeneratedAt.Equal(fixedNow) {
				t.Errorf("GeneratedAt = %v", b.GeneratedAt)
			}
			if len(b.Assessments) != 1 || len(b.Answers) != 1 || len(b.Members) != 1 || len(b.Findings) != 1 {
				t.Errorf("Unexpected record counts: %v", b.Counts)
			}
			if len(b.Documents) != tt.wantDocuments || b.Counts["documents"] != tt.wantDocuments {
				t.Errorf("Expected %d documents, got %d", tt.wantDocuments, len(b.Documents))
			}

			events, _ := f.trail.Query(ctx, &governance.AuditQuery{EventTypes: []governance.EventType{governance.EventExportCompleted}})
			if len(events) != 1 {
				t.Fatalf("Expected 1 completion event, got %d", len(events))
			}
			if events[0].Details["checksum"] != result["checksum"] || events[0].CorrelationID != "job-1" {
				t.Errorf("Unexpected event details: %v", events[0].Details)
			}
		})
	}
}

func TestHandler_RerunOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := exportJob("job-1", nil)

	first, err := f.handler.Export(ctx, job)
	if err != nil {
		t.Fatal(err)
	}
	must(t, f.business.AddFinding(ctx, governance.Finding{ID: "f2", EngagementID: "eng-1", Title: "Stale firewall rules"}))
	second, err := f.handler.Export(ctx, job)
	if err != nil {
		t.Fatal(err)
	}
	if first.Location != second.Location || first.Checksum == second.Checksum {
		t.Errorf("Expected rerun to overwrite the same artifact: %+v vs %+v", first, second)
	}

	entries, _ := os.ReadDir(filepath.Join(f.sink.Root(), "exports", "eng-1"))
	if len(entries) != 1 {
		t.Errorf("Expected a single artifact, got %d", len(entries))
	}
}

type failingStore struct {
	governance.BusinessStore
	err error
}

func (s failingStore) ListFindings(ctx context.Context, engagementID string) ([]governance.Finding, error) {
	return nil, s.err
}

func TestHandler_FailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storeErr := governance.NewTransientStoreError("business", "list_findings", errors.New("connection reset"))
	h := NewHandler(failingStore{BusinessStore: f.business, err: storeErr}, f.sink, f.trail)

	_, err := h.Export(ctx, exportJob("job-1", nil))
	if !governance.IsTransient(err) {
		t.Fatalf("Expected transient error, got %v", err)
	}
	if _, err := f.sink.Get(ctx, "exports/eng-1/job-1.json"); !errors.Is(err, governance.ErrNotFound) {
		t.Errorf("Expected no artifact, got %v", err)
	}
	if n, _ := f.trail.Count(ctx, &governance.AuditQuery{}); n != 0 {
		t.Errorf("Expected no audit events, got %d", n)
	}
}

func TestHandler_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := exportJob("job-1", map[string]any{"format": "xml"})
	if _, err := f.handler.Export(ctx, job); !governance.IsValidation(err) {
		t.Errorf("Expected validation error for format, got %v", err)
	}

	job = exportJob("job-2", nil)
	job.EngagementID = ""
	if _, err := f.handler.Export(ctx, job); !governance.IsValidation(err) {
		t.Errorf("Expected validation error for engagement, got %v", err)
	}

	job = exportJob("job-3", nil)
	job.EngagementID = "eng-missing"
	if _, err := f.handler.Export(ctx, job); !errors.Is(err, governance.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
