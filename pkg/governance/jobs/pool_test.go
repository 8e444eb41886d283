package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/audit"
	"maturity-hq/steward/pkg/governance/storage"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *storage.MemoryJobStore
	trail    *audit.Trail
	registry *Registry
	clock    *manualClock
	pool     *Pool
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()
	clock := newManualClock()
	keys := &audit.StaticKeys{Current: governance.HMACKey{ID: "k1", Secret: []byte("jobs-test-secret")}}
	f := &fixture{
		store:    storage.NewMemoryJobStore(),
		trail:    audit.NewTrail(storage.NewMemoryAuditStore(), keys, audit.WithClock(clock.Now)),
		registry: NewRegistry(),
		clock:    clock,
	}
	f.pool = NewPool(cfg, f.store, f.registry, f.trail, WithClock(clock.Now))
	return f
}

func (f *fixture) submit(t *testing.T, jobType governance.JobType, maxRetries int) string {
	t.Helper()
	id, err := f.store.Create(context.Background(), &governance.JobRecord{
		JobType:      jobType,
		EngagementID: "eng-1",
		Actor:        "alice",
		MaxRetries:   maxRetries,
		CreatedAt:    f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return id
}

func (f *fixture) events(t *testing.T, types ...governance.EventType) []*governance.AuditEvent {
	t.Helper()
	events, err := f.trail.Query(context.Background(), &governance.AuditQuery{EventTypes: types})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	return events
}

func (f *fixture) job(t *testing.T, id string) *governance.JobRecord {
	t.Helper()
	job, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	return job
}

// TestPool_Completes tests the happy path.
func TestPool_Completes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.registry.Register(governance.JobTypeExport, HandlerFunc(func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
		return map[string]any{"location": "exports/" + job.EngagementID + "/" + job.ID + ".json"}, nil
	}))

	id := f.submit(t, governance.JobTypeExport, 3)
	n, err := f.pool.Drain(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Drain() = %d, %v", n, err)
	}

	job := f.job(t, id)
	if job.Status != governance.JobStatusCompleted {
		t.Fatalf("Expected completed, got %s", job.Status)
	}
	if job.Result["location"] != "exports/eng-1/"+id+".json" {
		t.Errorf("Unexpected result %v", job.Result)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(f.clock.Now()) {
		t.Errorf("Expected completed_at stamped from the clock, got %v", job.CompletedAt)
	}
}

// TestPool_RunOnce tests that RunOnce executes the oldest claimable job only.
func TestPool_RunOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.registry.Register(governance.JobTypeExport, HandlerFunc(func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
		return map[string]any{}, nil
	}))

	first := f.submit(t, governance.JobTypeExport, 3)
	f.clock.Advance(time.Second)
	second := f.submit(t, governance.JobTypeExport, 3)

	ran, err := f.pool.RunOnce(ctx)
	if err != nil || !ran {
		t.Fatalf("RunOnce() = %v, %v", ran, err)
	}
	if got := f.job(t, first).Status; got != governance.JobStatusCompleted {
		t.Errorf("Expected first job completed, got %s", got)
	}
	if got := f.job(t, second).Status; got != governance.JobStatusPending {
		t.Errorf("Expected second job still pending, got %s", got)
	}

	if ran, _ := f.pool.RunOnce(ctx); !ran {
		t.Fatal("Expected second RunOnce to run a job")
	}
	if ran, err := f.pool.RunOnce(ctx); ran || err != nil {
		t.Errorf("RunOnce() on empty queue = %v, %v", ran, err)
	}
}

// TestPool_TransientRetriesThenFails tests bounded retry with backoff.
func TestPool_TransientRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &Config{RetryBackoff: 5 * time.Second, MaxBackoff: time.Minute})

	var calls atomic.Int32
	f.registry.Register(governance.JobTypePurge, HandlerFunc(func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
		calls.Add(1)
		return nil, governance.NewTransientStoreError("business", "soft_delete", errors.New("dial tcp 10.0.0.7:5432: connection refused"))
	}))

	id := f.submit(t, governance.JobTypePurge, 2)

	f.pool.Drain(ctx)
	job := f.job(t, id)
	if job.Status != governance.JobStatusPending || job.RetryCount != 1 {
		t.Fatalf("Expected pending with retry 1, got %s/%d", job.Status, job.RetryCount)
	}
	if !job.AvailableAt.Equal(f.clock.Now().Add(5 * time.Second)) {
		t.Errorf("Expected 5s backoff, got available_at %v", job.AvailableAt)
	}

	// Not claimable during backoff.
	if n, _ := f.pool.Drain(ctx); n != 0 {
		t.Errorf("Expected no job during backoff, ran %d", n)
	}

	f.clock.Advance(5 * time.Second)
	f.pool.Drain(ctx)
	job = f.job(t, id)
	if job.RetryCount != 2 || !job.AvailableAt.Equal(f.clock.Now().Add(10*time.Second)) {
		t.Errorf("Expected doubled backoff on retry 2, got retry %d available %v", job.RetryCount, job.AvailableAt)
	}

	f.clock.Advance(10 * time.Second)
	f.pool.Drain(ctx)
	job = f.job(t, id)
	if job.Status != governance.JobStatusFailed {
		t.Fatalf("Expected failed after retries exhausted, got %s", job.Status)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
	if strings.Contains(job.ErrorMessage, "10.0.0.7") {
		t.Errorf("error_message leaks internals: %q", job.ErrorMessage)
	}

	if got := len(f.events(t, governance.EventJobRequeued)); got != 2 {
		t.Errorf("Expected 2 job_requeued events, got %d", got)
	}
	failed := f.events(t, governance.EventPurgeFailed)
	if len(failed) != 1 {
		t.Fatalf("Expected 1 data_purge_failed event, got %d", len(failed))
	}
	if failed[0].CorrelationID != id || failed[0].EngagementID != "eng-1" {
		t.Errorf("Unexpected failure event scope: %+v", failed[0])
	}
}

// TestPool_NonRetryableFailures tests errors that fail immediately.
func TestPool_NonRetryableFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler HandlerFunc
		message string
	}{
		{
			name: "invariant violation",
			handler: func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
				return nil, governance.NewInvariantViolation("hard_delete_after_retention", "retention not elapsed")
			},
			message: "purge failed: operation not permitted in the current state",
		},
		{
			name: "validation",
			handler: func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
				return nil, governance.NewValidationError("categories", "unknown category")
			},
			message: "purge failed: invalid job parameters",
		},
		{
			name: "panic",
			handler: func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
				panic("boom")
			},
			message: "purge failed: internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.registry.Register(governance.JobTypePurge, tt.handler)
			id := f.submit(t, governance.JobTypePurge, 3)

			f.pool.Drain(context.Background())

			job := f.job(t, id)
			if job.Status != governance.JobStatusFailed || job.RetryCount != 0 {
				t.Fatalf("Expected failed without retry, got %s/%d", job.Status, job.RetryCount)
			}
			if job.ErrorMessage != tt.message {
				t.Errorf("ErrorMessage = %q, want %q", job.ErrorMessage, tt.message)
			}
		})
	}
}

// TestPool_ExecutionTimeout tests the per-type deadline.
func TestPool_ExecutionTimeout(t *testing.T) {
	f := newFixture(t, &Config{Timeouts: map[governance.JobType]time.Duration{governance.JobTypeExport: 20 * time.Millisecond}})
	f.registry.Register(governance.JobTypeExport, HandlerFunc(func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	id := f.submit(t, governance.JobTypeExport, 0)

	f.pool.Drain(context.Background())

	job := f.job(t, id)
	if job.Status != governance.JobStatusFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if job.ErrorMessage != "exceeded maximum execution time" {
		t.Errorf("Unexpected error message %q", job.ErrorMessage)
	}
	if got := len(f.events(t, governance.EventExportFailed)); got != 1 {
		t.Errorf("Expected 1 data_export_failed event, got %d", got)
	}
}

// TestPool_Reap tests recovery of jobs abandoned by a dead worker.
func TestPool_Reap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &Config{RetryBackoff: time.Second})
	f.registry.Register(governance.JobTypeExport, HandlerFunc(func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
		return nil, nil
	}))

	retryable := f.submit(t, governance.JobTypeExport, 1)
	exhausted := f.submit(t, governance.JobTypeExport, 0)
	fresh := f.submit(t, governance.JobTypeExport, 1)

	// Two workers claim and die; a third claims later.
	dead, _ := f.store.Claim(ctx, retryable, "dead-1", f.clock.Now())
	f.store.Claim(ctx, exhausted, "dead-2", f.clock.Now())
	f.clock.Advance(25 * time.Minute)
	f.store.Claim(ctx, fresh, "alive", f.clock.Now())
	f.clock.Advance(5*time.Minute + time.Second)

	n, err := f.pool.Reap(ctx)
	if err != nil {
		t.Fatalf("Reap() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 reaped, got %d", n)
	}

	if job := f.job(t, retryable); job.Status != governance.JobStatusPending || job.RetryCount != 1 {
		t.Errorf("Expected retryable job requeued, got %s/%d", job.Status, job.RetryCount)
	}
	job := f.job(t, exhausted)
	if job.Status != governance.JobStatusFailed || job.ErrorMessage != "exceeded maximum execution time" {
		t.Errorf("Expected exhausted job failed, got %s %q", job.Status, job.ErrorMessage)
	}
	if job := f.job(t, fresh); job.Status != governance.JobStatusProcessing {
		t.Errorf("Expected fresh job untouched, got %s", job.Status)
	}

	// The dead worker wakes up and cannot overwrite the reaped state.
	err = f.store.Update(ctx, retryable, dead.ClaimID, governance.JobUpdate{Status: governance.JobStatusCompleted, At: f.clock.Now()})
	if !errors.Is(err, governance.ErrNotClaimable) {
		t.Errorf("Expected stale worker update to fail, got %v", err)
	}

	// The requeued job runs to completion on a live worker.
	f.clock.Advance(time.Second)
	f.pool.Drain(ctx)
	if job := f.job(t, retryable); job.Status != governance.JobStatusCompleted {
		t.Errorf("Expected requeued job to complete, got %s", job.Status)
	}
}

// TestPool_StartShutdown tests concurrent workers end to end.
func TestPool_StartShutdown(t *testing.T) {
	f := newFixture(t, &Config{Workers: 4, PollInterval: 10 * time.Millisecond})

	var calls atomic.Int32
	f.registry.Register(governance.JobTypeTTLCleanup, HandlerFunc(func(ctx context.Context, job *governance.JobRecord) (map[string]any, error) {
		calls.Add(1)
		time.Sleep(time.Millisecond)
		return map[string]any{"deleted": 0}, nil
	}))

	const total = 25
	for i := 0; i < total; i++ {
		f.submit(t, governance.JobTypeTTLCleanup, 0)
	}

	if err := f.pool.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := f.pool.Start(context.Background()); err == nil {
		t.Error("Expected second Start() to fail")
	}
	f.pool.Wake()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		completed, _ := f.store.ListByStatus(context.Background(), governance.JobStatusCompleted, 0)
		if len(completed) == total {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	if calls.Load() != total {
		t.Errorf("Expected %d executions, got %d", total, calls.Load())
	}
	if f.pool.InFlight() != 0 {
		t.Errorf("Expected no in-flight jobs after shutdown, got %d", f.pool.InFlight())
	}
}

func TestConfig_Backoff(t *testing.T) {
	cfg := &Config{RetryBackoff: 5 * time.Second, MaxBackoff: 30 * time.Second}
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.Backoff(tt.retry); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestRegistry_RejectsUnknownType(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("reindex", HandlerFunc(nil)); err == nil {
		t.Error("Expected unknown job type to be rejected")
	}
	r.Register(governance.JobTypeAuditRetention, HandlerFunc(func(context.Context, *governance.JobRecord) (map[string]any, error) { return nil, nil }))
	r.Register(governance.JobTypeExport, HandlerFunc(func(context.Context, *governance.JobRecord) (map[string]any, error) { return nil, nil }))
	types := r.Types()
	if len(types) != 2 || types[0] != governance.JobTypeExport {
		t.Errorf("Expected canonical order, got %v", types)
	}
}
