package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
)

func openTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(&SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "governance.db"),
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testKeys() *audit.StaticKeys {
	return &audit.StaticKeys{Current: governance.HMACKey{ID: "k1", Secret: []byte("sqlite-test-secret-0123456789")}}
}

// TestOpenSQLite_Reopen tests that the schema is idempotent across restarts.
func TestOpenSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "governance.db")
	ctx := context.Background()

	db, err := OpenSQLite(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	id, err := db.Jobs().Create(ctx, newJob(governance.JobTypeExport, "eng-1", time.Now()))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() should be a no-op, got %v", err)
	}

	db, err = OpenSQLite(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
	if _, err := db.Jobs().Get(ctx, id); err != nil {
		t.Errorf("Expected job %s to survive reopen, got %v", id, err)
	}
}

// TestSQLiteAudit_RoundTripVerifies tests that stored events keep a valid tag.
func TestSQLiteAudit_RoundTripVerifies(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2026, 3, 4, 5, 6, 7, 891011121, time.UTC)
	trail := audit.NewTrail(db.Audit(), testKeys(), audit.WithClock(func() time.Time { return now }))

	id, err := trail.Append(ctx, audit.Entry{
		Actor:         "alice",
		EngagementID:  "eng-1",
		CorrelationID: "job-1",
		Details: audit.ExportCompleted{
			JobID:         "job-1",
			ExportVersion: "1.0",
			Size:          1234,
			Checksum:      "sha256:abc",
			Counts:        map[string]int{"assessments": 2, "documents": 0},
		},
	})
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	ev, err := trail.GetVerified(ctx, id)
	if err != nil {
		t.Fatalf("GetVerified() failed: %v", err)
	}
	if !ev.Timestamp.Equal(now) {
		t.Errorf("Expected timestamp %v, got %v", now, ev.Timestamp)
	}
}

// TestSQLiteAudit_Immutable tests that the trigger rejects updates.
func TestSQLiteAudit_Immutable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	trail := audit.NewTrail(db.Audit(), testKeys())

	id, err := trail.Append(ctx, audit.Entry{Actor: "alice", Details: audit.Activity{Action: "login"}})
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	_, err = db.DB().ExecContext(ctx, `UPDATE audit_events SET actor = 'mallory' WHERE id = ?`, id)
	if err == nil {
		t.Fatal("Expected UPDATE on audit_events to be rejected")
	}
}

// TestSQLiteAudit_DetectsOutOfBandTamper tests that verification flags an
// event modified directly in the database.
func TestSQLiteAudit_DetectsOutOfBandTamper(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	var flagged []string
	trail := audit.NewTrail(db.Audit(), testKeys(),
		audit.WithClock(func() time.Time { return now }),
		audit.WithIntegrityHook(func(id string) { flagged = append(flagged, id) }),
	)

	var ids []string
	for i := 0; i < 3; i++ {
		now = now.Add(time.Second)
		id, err := trail.Append(ctx, audit.Entry{
			Actor:        "alice",
			EngagementID: "eng-1",
			Details:      audit.PurgeCompleted{JobID: "job-1", Removed: audit.PurgeCounts{"findings": int64(i)}},
		})
		if err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		ids = append(ids, id)
	}

	if _, err := db.DB().ExecContext(ctx, `DROP TRIGGER audit_events_immutable`); err != nil {
		t.Fatalf("DROP TRIGGER failed: %v", err)
	}
	_, err := db.DB().ExecContext(ctx,
		`UPDATE audit_events SET details = '{"categories":["findings"],"findings":0,"job_id":"job-1"}' WHERE id = ?`, ids[2])
	if err != nil {
		t.Fatalf("tamper UPDATE failed: %v", err)
	}

	result, err := trail.VerifyRange(ctx, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("VerifyRange() failed: %v", err)
	}
	if result.Valid {
		t.Fatal("Expected tampered range to be invalid")
	}
	if result.Checked != 3 {
		t.Errorf("Expected 3 checked, got %d", result.Checked)
	}
	if len(result.Failures) != 1 || result.Failures[0] != ids[2] {
		t.Errorf("Expected failure on %s, got %v", ids[2], result.Failures)
	}
	if len(flagged) != 1 {
		t.Errorf("Expected integrity hook to fire once, got %d", len(flagged))
	}

	if _, err := trail.GetVerified(ctx, ids[2]); !governance.IsIntegrity(err) {
		t.Errorf("Expected IntegrityError from GetVerified, got %v", err)
	}
}

// TestSQLiteAudit_QueryFilters tests filters, ordering and pagination.
func TestSQLiteAudit_QueryFilters(t *testing.T) {
	ctx := context.Background()
	stores := map[string]governance.AuditStore{
		"memory": NewMemoryAuditStore(),
		"sqlite": openTestDB(t).Audit(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			clock := base
			trail := audit.NewTrail(store, testKeys(), audit.WithClock(func() time.Time { return clock }))

			appendAt := func(offset time.Duration, eng, corr string, d audit.Details) {
				clock = base.Add(offset)
				if _, err := trail.Append(ctx, audit.Entry{Actor: "a", EngagementID: eng, CorrelationID: corr, Details: d}); err != nil {
					t.Fatalf("Append() failed: %v", err)
				}
			}
			appendAt(1*time.Minute, "eng-1", "", audit.Activity{Action: "view"})
			appendAt(2*time.Minute, "eng-1", "job-1", audit.PurgeRequested{JobID: "job-1", Categories: []string{"documents"}})
			appendAt(3*time.Minute, "eng-2", "", audit.Activity{Action: "view"})
			appendAt(4*time.Minute, "eng-1", "job-1", audit.Activity{Action: "download"})
			appendAt(5*time.Minute, "eng-1", "", audit.Activity{Action: "edit"})

			start := base.Add(2 * time.Minute)
			end := base.Add(4 * time.Minute)

			tests := []struct {
				name  string
				query *governance.AuditQuery
				want  int
			}{
				{"all", &governance.AuditQuery{}, 5},
				{"engagement", &governance.AuditQuery{EngagementID: "eng-1"}, 4},
				{"inclusive range", &governance.AuditQuery{StartTime: &start, EndTime: &end}, 3},
				{"event type", &governance.AuditQuery{EventTypes: []governance.EventType{governance.EventPurgeRequested}}, 1},
				{"exclude governance", &governance.AuditQuery{EngagementID: "eng-1", ExcludeEventTypes: governance.GovernanceEventTypes()}, 3},
				{"correlation", &governance.AuditQuery{CorrelationID: "job-1"}, 2},
				{"exclude correlation", &governance.AuditQuery{EngagementID: "eng-1", ExcludeCorrelationID: "job-1"}, 2},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					n, err := store.Count(ctx, tt.query)
					if err != nil {
						t.Fatalf("Count() failed: %v", err)
					}
					if n != int64(tt.want) {
						t.Errorf("Count() = %d, want %d", n, tt.want)
					}
				})
			}

			page, err := store.Query(ctx, &governance.AuditQuery{SortOrder: "desc", Limit: 2, Offset: 1})
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(page) != 2 {
				t.Fatalf("Expected 2 events, got %d", len(page))
			}
			if !page[0].Timestamp.Equal(base.Add(4*time.Minute)) || !page[1].Timestamp.Equal(base.Add(3*time.Minute)) {
				t.Errorf("Unexpected page order: %v, %v", page[0].Timestamp, page[1].Timestamp)
			}

			// Expired at the cutoff inclusive.
			n, err := store.DeleteExpired(ctx, base.Add(2*time.Minute), 100)
			if err != nil || n != 2 {
				t.Errorf("DeleteExpired() = %d, %v, want 2", n, err)
			}
		})
	}
}

// TestSQLiteAudit_RefusesUnfilteredDelete tests that Delete needs a filter.
func TestSQLiteAudit_RefusesUnfilteredDelete(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Audit().Delete(context.Background(), &governance.AuditQuery{})
	var se *governance.StorageError
	if !errors.As(err, &se) {
		t.Errorf("Expected StorageError, got %v", err)
	}
}
