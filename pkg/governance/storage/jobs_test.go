package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"maturity-hq/steward/pkg/governance"
)

// jobStores returns every JobStore implementation under test.
func jobStores(t *testing.T) map[string]governance.JobStore {
	t.Helper()

	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "governance.db")
	db, err := OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]governance.JobStore{
		"memory": NewMemoryJobStore(),
		"sqlite": db.Jobs(),
	}
}

func newJob(jobType governance.JobType, engagementID string, created time.Time) *governance.JobRecord {
	return &governance.JobRecord{
		JobType:      jobType,
		EngagementID: engagementID,
		Actor:        "alice",
		Parameters:   map[string]any{"categories": []string{"documents"}},
		MaxRetries:   3,
		CreatedAt:    created,
	}
}

// TestJobStore_ExactlyOnceClaim tests that concurrent ClaimNext callers never
// observe the same job.
func TestJobStore_ExactlyOnceClaim(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

			const jobs = 20
			const workers = 12
			for i := 0; i < jobs; i++ {
				if _, err := store.Create(ctx, newJob(governance.JobTypeExport, "eng-1", now.Add(-time.Duration(jobs-i)*time.Second))); err != nil {
					t.Fatalf("Create() failed: %v", err)
				}
			}

			var (
				mu      sync.Mutex
				claimed = make(map[string]string)
				dupes   []string
				wg      sync.WaitGroup
			)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(worker string) {
					defer wg.Done()
					for {
						job, err := store.ClaimNext(ctx, governance.AllJobTypes(), worker, now)
						if err != nil {
							t.Errorf("ClaimNext() failed: %v", err)
							return
						}
						if job == nil {
							return
						}
						mu.Lock()
						if prev, ok := claimed[job.ID]; ok {
							dupes = append(dupes, fmt.Sprintf("%s claimed by %s and %s", job.ID, prev, worker))
						}
						claimed[job.ID] = worker
						mu.Unlock()
					}
				}(fmt.Sprintf("worker-%d", w))
			}
			wg.Wait()

			if len(dupes) > 0 {
				t.Fatalf("Jobs claimed more than once: %v", dupes)
			}
			if len(claimed) != jobs {
				t.Errorf("Expected %d claimed jobs, got %d", jobs, len(claimed))
			}
		})
	}
}

// TestJobStore_ClaimOrderAndAvailability tests oldest-first claiming and
// delayed availability.
func TestJobStore_ClaimOrderAndAvailability(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

			delayed := newJob(governance.JobTypePurge, "eng-1", now.Add(-time.Hour))
			delayed.AvailableAt = now.Add(time.Hour)
			if _, err := store.Create(ctx, delayed); err != nil {
				t.Fatalf("Create() failed: %v", err)
			}
			newer := newJob(governance.JobTypeExport, "eng-1", now.Add(-time.Minute))
			older := newJob(governance.JobTypeExport, "eng-1", now.Add(-10*time.Minute))
			store.Create(ctx, newer)
			store.Create(ctx, older)

			job, err := store.ClaimNext(ctx, governance.AllJobTypes(), "w1", now)
			if err != nil || job == nil {
				t.Fatalf("ClaimNext() = %v, %v", job, err)
			}
			if job.ID != older.ID {
				t.Errorf("Expected oldest job %s, got %s", older.ID, job.ID)
			}
			if job.Status != governance.JobStatusProcessing || job.ClaimID == "" || job.StartedAt == nil {
				t.Errorf("Claimed job not stamped: %+v", job)
			}

			// Type filter excludes the remaining export.
			job, err = store.ClaimNext(ctx, []governance.JobType{governance.JobTypePurge}, "w1", now)
			if err != nil {
				t.Fatalf("ClaimNext() failed: %v", err)
			}
			if job != nil {
				t.Errorf("Expected delayed purge to be unclaimable, got %s", job.ID)
			}

			job, _ = store.ClaimNext(ctx, []governance.JobType{governance.JobTypePurge}, "w1", now.Add(time.Hour))
			if job == nil || job.ID != delayed.ID {
				t.Errorf("Expected delayed purge claimable at its available_at, got %v", job)
			}
		})
	}
}

// TestJobStore_UpdateRequiresClaim tests compare-and-swap updates.
func TestJobStore_UpdateRequiresClaim(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

			id, _ := store.Create(ctx, newJob(governance.JobTypeExport, "eng-1", now))

			// Pending jobs cannot be completed.
			err := store.Update(ctx, id, "", governance.JobUpdate{Status: governance.JobStatusCompleted, At: now})
			if !errors.Is(err, governance.ErrNotClaimable) {
				t.Errorf("Expected ErrNotClaimable for unclaimed job, got %v", err)
			}

			job, _ := store.ClaimNext(ctx, governance.AllJobTypes(), "w1", now)

			// processing -> processing is never a valid update.
			err = store.Update(ctx, id, job.ClaimID, governance.JobUpdate{Status: governance.JobStatusProcessing})
			if !governance.IsInvariant(err) {
				t.Errorf("Expected InvariantViolation, got %v", err)
			}

			// A stale claim loses.
			err = store.Update(ctx, id, "stale-claim", governance.JobUpdate{Status: governance.JobStatusCompleted, At: now})
			if !errors.Is(err, governance.ErrNotClaimable) {
				t.Errorf("Expected ErrNotClaimable for stale claim, got %v", err)
			}

			err = store.Update(ctx, id, job.ClaimID, governance.JobUpdate{
				Status: governance.JobStatusCompleted,
				Result: map[string]any{"location": "exports/eng-1/x.json", "size": 42},
				At:     now.Add(time.Minute),
			})
			if err != nil {
				t.Fatalf("Update() failed: %v", err)
			}

			got, err := store.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if got.Status != governance.JobStatusCompleted || got.CompletedAt == nil {
				t.Errorf("Expected completed job, got %+v", got)
			}
			if got.Result["location"] != "exports/eng-1/x.json" {
				t.Errorf("Expected result location, got %v", got.Result)
			}

			// Terminal jobs never move again.
			err = store.Update(ctx, id, job.ClaimID, governance.JobUpdate{Status: governance.JobStatusFailed, At: now})
			if !errors.Is(err, governance.ErrNotClaimable) {
				t.Errorf("Expected ErrNotClaimable on terminal job, got %v", err)
			}
		})
	}
}

// TestJobStore_Requeue tests returning a processing job to pending.
func TestJobStore_Requeue(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

			id, _ := store.Create(ctx, newJob(governance.JobTypePurge, "eng-1", now))
			first, _ := store.ClaimNext(ctx, governance.AllJobTypes(), "w1", now)

			err := store.Update(ctx, id, first.ClaimID, governance.JobUpdate{
				Status:       governance.JobStatusPending,
				AvailableAt:  now.Add(time.Minute),
				ErrorMessage: "purge failed: a dependent data store was unavailable",
			})
			if err != nil {
				t.Fatalf("Update(requeue) failed: %v", err)
			}

			got, _ := store.Get(ctx, id)
			if got.Status != governance.JobStatusPending || got.RetryCount != 1 || got.StartedAt != nil || got.ClaimID != "" {
				t.Errorf("Unexpected requeued job: %+v", got)
			}

			if job, _ := store.ClaimNext(ctx, governance.AllJobTypes(), "w2", now); job != nil {
				t.Error("Requeued job should wait for its backoff")
			}
			second, _ := store.ClaimNext(ctx, governance.AllJobTypes(), "w2", now.Add(time.Minute))
			if second == nil || second.ClaimID == first.ClaimID {
				t.Fatalf("Expected a fresh claim, got %+v", second)
			}

			// The first worker's claim is dead.
			err = store.Update(ctx, id, first.ClaimID, governance.JobUpdate{Status: governance.JobStatusCompleted, At: now})
			if !errors.Is(err, governance.ErrNotClaimable) {
				t.Errorf("Expected stale worker to lose, got %v", err)
			}
		})
	}
}

// TestJobStore_CreateUnique tests dedup of active jobs.
func TestJobStore_CreateUnique(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

			first := newJob(governance.JobTypePurge, "eng-1", now)
			first.DedupKey = "dedup-1"
			id1, created, err := store.CreateUnique(ctx, first)
			if err != nil || !created {
				t.Fatalf("CreateUnique() = %s, %v, %v", id1, created, err)
			}

			second := newJob(governance.JobTypePurge, "eng-1", now)
			second.DedupKey = "dedup-1"
			id2, created, err := store.CreateUnique(ctx, second)
			if err != nil {
				t.Fatalf("CreateUnique() failed: %v", err)
			}
			if created || id2 != id1 {
				t.Errorf("Expected existing job %s, got %s (created=%v)", id1, id2, created)
			}

			active, err := store.FindActive(ctx, "dedup-1")
			if err != nil || active.ID != id1 {
				t.Errorf("FindActive() = %v, %v", active, err)
			}

			// Once finished, the key is free again.
			job, _ := store.ClaimNext(ctx, governance.AllJobTypes(), "w1", now)
			store.Update(ctx, job.ID, job.ClaimID, governance.JobUpdate{Status: governance.JobStatusCompleted, At: now})

			if _, err := store.FindActive(ctx, "dedup-1"); !errors.Is(err, governance.ErrNotFound) {
				t.Errorf("Expected ErrNotFound after completion, got %v", err)
			}
			third := newJob(governance.JobTypePurge, "eng-1", now)
			third.DedupKey = "dedup-1"
			id3, created, err := store.CreateUnique(ctx, third)
			if err != nil || !created || id3 == id1 {
				t.Errorf("Expected new job after completion, got %s, %v, %v", id3, created, err)
			}
		})
	}
}

// TestJobStore_ConcurrentCreateUnique tests that racing submissions produce one job.
func TestJobStore_ConcurrentCreateUnique(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			var wg sync.WaitGroup
			ids := make([]string, 10)
			for i := range ids {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					job := newJob(governance.JobTypePurge, "eng-1", now)
					job.DedupKey = "racing"
					id, _, err := store.CreateUnique(ctx, job)
					if err != nil {
						t.Errorf("CreateUnique() failed: %v", err)
					}
					ids[i] = id
				}(i)
			}
			wg.Wait()

			for _, id := range ids[1:] {
				if id != ids[0] {
					t.Fatalf("Expected one job id, got %v", ids)
				}
			}
		})
	}
}

// TestJobStore_ListAndClaimByID tests listing and targeted claims.
func TestJobStore_ListAndClaimByID(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

			a, _ := store.Create(ctx, newJob(governance.JobTypeExport, "eng-1", now.Add(-2*time.Minute)))
			b := newJob(governance.JobTypePurge, "eng-1", now.Add(-time.Minute))
			b.AvailableAt = now.Add(24 * time.Hour)
			store.Create(ctx, b)
			store.Create(ctx, newJob(governance.JobTypeExport, "eng-2", now))

			all, err := store.ListByEngagement(ctx, "eng-1", "")
			if err != nil {
				t.Fatalf("ListByEngagement() failed: %v", err)
			}
			if len(all) != 2 || all[0].ID != b.ID {
				t.Errorf("Expected 2 jobs newest first, got %d", len(all))
			}

			// Claim ignores available_at.
			claimed, err := store.Claim(ctx, b.ID, "recover", now)
			if err != nil {
				t.Fatalf("Claim() failed: %v", err)
			}
			if claimed.Status != governance.JobStatusProcessing {
				t.Errorf("Expected processing, got %s", claimed.Status)
			}
			if _, err := store.Claim(ctx, b.ID, "recover", now); !errors.Is(err, governance.ErrNotClaimable) {
				t.Errorf("Expected second Claim() to fail, got %v", err)
			}
			if _, err := store.Claim(ctx, "missing", "recover", now); !errors.Is(err, governance.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}

			processing, _ := store.ListByEngagement(ctx, "eng-1", governance.JobStatusProcessing)
			if len(processing) != 1 || processing[0].ID != b.ID {
				t.Errorf("Expected only %s processing, got %v", b.ID, processing)
			}
			pending, _ := store.ListByStatus(ctx, governance.JobStatusPending, 10)
			if len(pending) != 2 || pending[0].ID != a {
				t.Errorf("Expected 2 pending jobs oldest first, got %d", len(pending))
			}
		})
	}
}

// TestJobStore_DeleteExpired tests that only terminal jobs are swept, inclusive of the cutoff.
func TestJobStore_DeleteExpired(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
			cutoff := now.Add(-time.Hour)

			finish := func(completedAt time.Time) string {
				id, _ := store.Create(ctx, newJob(governance.JobTypeTTLCleanup, "", completedAt.Add(-time.Minute)))
				job, _ := store.Claim(ctx, id, "w", completedAt)
				store.Update(ctx, id, job.ClaimID, governance.JobUpdate{Status: governance.JobStatusCompleted, At: completedAt})
				return id
			}
			atCutoff := finish(cutoff)
			older := finish(cutoff.Add(-time.Hour))
			newer := finish(cutoff.Add(time.Nanosecond))
			pendingID, _ := store.Create(ctx, newJob(governance.JobTypeExport, "eng-1", now.Add(-48*time.Hour)))

			n, err := store.DeleteExpired(ctx, cutoff, 1)
			if err != nil || n != 1 {
				t.Fatalf("DeleteExpired(limit=1) = %d, %v", n, err)
			}
			n, _ = store.DeleteExpired(ctx, cutoff, 10)
			if n != 1 {
				t.Errorf("Expected 1 more deleted, got %d", n)
			}

			for _, id := range []string{atCutoff, older} {
				if _, err := store.Get(ctx, id); !errors.Is(err, governance.ErrNotFound) {
					t.Errorf("Expected %s deleted", id)
				}
			}
			for _, id := range []string{newer, pendingID} {
				if _, err := store.Get(ctx, id); err != nil {
					t.Errorf("Expected %s kept, got %v", id, err)
				}
			}
		})
	}
}

// TestJobStore_DeleteExpiredKeepsActiveChain tests that a terminal job is not
// swept while a later phase of the same correlation chain is still pending.
func TestJobStore_DeleteExpiredKeepsActiveChain(t *testing.T) {
	for name, store := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

			rootID, _ := store.Create(ctx, newJob(governance.JobTypePurge, "eng-1", start))
			root, err := store.Claim(ctx, rootID, "w", start)
			if err != nil {
				t.Fatalf("Claim() failed: %v", err)
			}
			if err := store.Update(ctx, rootID, root.ClaimID, governance.JobUpdate{Status: governance.JobStatusCompleted, At: start}); err != nil {
				t.Fatalf("Update() failed: %v", err)
			}

			follow := newJob(governance.JobTypePurge, "eng-1", start)
			follow.CorrelationID = rootID
			follow.AvailableAt = start.Add(400 * 24 * time.Hour)
			followID, err := store.Create(ctx, follow)
			if err != nil {
				t.Fatalf("Create() failed: %v", err)
			}

			cutoff := start.Add(366 * 24 * time.Hour)
			if n, err := store.DeleteExpired(ctx, cutoff, 10); err != nil || n != 0 {
				t.Fatalf("DeleteExpired() with pending follow-up = %d, %v; want 0", n, err)
			}
			if _, err := store.Get(ctx, rootID); err != nil {
				t.Fatalf("Expected root job kept, got %v", err)
			}

			claimed, err := store.Claim(ctx, followID, "w", follow.AvailableAt)
			if err != nil {
				t.Fatalf("Claim() of follow-up failed: %v", err)
			}
			if err := store.Update(ctx, followID, claimed.ClaimID, governance.JobUpdate{Status: governance.JobStatusCompleted, At: follow.AvailableAt}); err != nil {
				t.Fatalf("Update() failed: %v", err)
			}

			n, err := store.DeleteExpired(ctx, follow.AvailableAt, 10)
			if err != nil || n != 2 {
				t.Fatalf("DeleteExpired() after chain finished = %d, %v; want 2", n, err)
			}
		})
	}
}
