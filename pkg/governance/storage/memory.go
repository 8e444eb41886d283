package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"maturity-hq/steward/pkg/governance"
)

// prepareJob fills identity and timestamps of a job about to be created.
func prepareJob(job *governance.JobRecord) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CorrelationID == "" {
		job.CorrelationID = job.ID
	}
	if job.Status == "" {
		job.Status = governance.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = governance.SystemClock()
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = job.CreatedAt
	}
}

// MemoryJobStore is an in-memory governance.JobStore for tests and
// single-process development. All operations hold one mutex, which makes
// claims trivially atomic.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*governance.JobRecord
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*governance.JobRecord)}
}

// Create persists a new pending job and returns its id.
func (s *MemoryJobStore) Create(ctx context.Context, job *governance.JobRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareJob(job)
	if _, exists := s.jobs[job.ID]; exists {
		return "", governance.NewStorageError("memory", "create", fmt.Errorf("job %s already exists", job.ID))
	}
	if job.DedupKey != "" {
		if existing := s.activeLocked(job.DedupKey); existing != nil {
			return "", &governance.ConflictError{JobID: existing.ID, Reason: "an equivalent job is already in flight"}
		}
	}
	s.jobs[job.ID] = job.Clone()
	return job.ID, nil
}

// CreateUnique persists job unless an active job holds the same dedup key.
func (s *MemoryJobStore) CreateUnique(ctx context.Context, job *governance.JobRecord) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.DedupKey != "" {
		if existing := s.activeLocked(job.DedupKey); existing != nil {
			return existing.ID, false, nil
		}
	}
	prepareJob(job)
	s.jobs[job.ID] = job.Clone()
	return job.ID, true, nil
}

// FindActive returns the active job holding dedupKey.
func (s *MemoryJobStore) FindActive(ctx context.Context, dedupKey string) (*governance.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.activeLocked(dedupKey); existing != nil {
		return existing.Clone(), nil
	}
	return nil, governance.ErrNotFound
}

func (s *MemoryJobStore) activeLocked(dedupKey string) *governance.JobRecord {
	for _, job := range s.jobs {
		if job.DedupKey == dedupKey && job.Status.Active() {
			return job
		}
	}
	return nil
}

// ClaimNext claims the oldest claimable pending job of the given types.
func (s *MemoryJobStore) ClaimNext(ctx context.Context, types []governance.JobType, workerID string, now time.Time) (*governance.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *governance.JobRecord
	for _, job := range s.jobs {
		if job.Status != governance.JobStatusPending || job.AvailableAt.After(now) {
			continue
		}
		if !slices.Contains(types, job.JobType) {
			continue
		}
		if next == nil || claimOrder(job, next) < 0 {
			next = job
		}
	}
	if next == nil {
		return nil, nil
	}
	s.claimLocked(next, workerID, now)
	return next.Clone(), nil
}

// Claim claims one specific pending job.
func (s *MemoryJobStore) Claim(ctx context.Context, id, workerID string, now time.Time) (*governance.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, governance.ErrNotFound)
	}
	if job.Status != governance.JobStatusPending {
		return nil, governance.ErrNotClaimable
	}
	s.claimLocked(job, workerID, now)
	return job.Clone(), nil
}

func (s *MemoryJobStore) claimLocked(job *governance.JobRecord, workerID string, now time.Time) {
	started := now
	job.Status = governance.JobStatusProcessing
	job.WorkerID = workerID
	job.ClaimID = uuid.New().String()
	job.StartedAt = &started
}

func claimOrder(a, b *governance.JobRecord) int {
	if c := a.AvailableAt.Compare(b.AvailableAt); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Update applies a transition to a processing job owned by claimID.
func (s *MemoryJobStore) Update(ctx context.Context, id, claimID string, u governance.JobUpdate) error {
	if err := governance.CheckTransition(governance.JobStatusProcessing, u.Status); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, governance.ErrNotFound)
	}
	if job.Status != governance.JobStatusProcessing || job.ClaimID != claimID {
		return governance.ErrNotClaimable
	}

	switch u.Status {
	case governance.JobStatusCompleted, governance.JobStatusFailed:
		at := u.At
		job.Status = u.Status
		job.Result = cloneResult(u.Result)
		job.ErrorMessage = u.ErrorMessage
		job.CompletedAt = &at
	case governance.JobStatusPending:
		job.Status = governance.JobStatusPending
		job.RetryCount++
		job.AvailableAt = u.AvailableAt
		job.ErrorMessage = u.ErrorMessage
		job.WorkerID = ""
		job.ClaimID = ""
		job.StartedAt = nil
	}
	return nil
}

func cloneResult(m map[string]any) map[string]any {
	return (&governance.JobRecord{Result: m}).Clone().Result
}

// Get returns a job by id.
func (s *MemoryJobStore) Get(ctx context.Context, id string) (*governance.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, governance.ErrNotFound)
	}
	return job.Clone(), nil
}

// ListByEngagement returns an engagement's jobs, newest first.
func (s *MemoryJobStore) ListByEngagement(ctx context.Context, engagementID string, status governance.JobStatus) ([]*governance.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*governance.JobRecord
	for _, job := range s.jobs {
		if job.EngagementID != engagementID {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job.Clone())
	}
	slices.SortFunc(out, func(a, b *governance.JobRecord) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

// ListByStatus returns up to limit jobs in status, oldest first.
func (s *MemoryJobStore) ListByStatus(ctx context.Context, status governance.JobStatus, limit int) ([]*governance.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*governance.JobRecord
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, job.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *governance.JobRecord) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteExpired removes up to limit terminal jobs completed at or before
// cutoff. A terminal job is kept while another job of its correlation chain
// is still pending or processing.
func (s *MemoryJobStore) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[string]bool)
	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			active[job.CorrelationID] = true
		}
	}

	var expired []*governance.JobRecord
	for _, job := range s.jobs {
		if active[job.CorrelationID] {
			continue
		}
		if job.Status.Terminal() && job.CompletedAt != nil && !job.CompletedAt.After(cutoff) {
			expired = append(expired, job)
		}
	}
	slices.SortFunc(expired, func(a, b *governance.JobRecord) int {
		return a.CompletedAt.Compare(*b.CompletedAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, job := range expired {
		delete(s.jobs, job.ID)
	}
	return int64(len(expired)), nil
}

// Close is a no-op.
func (s *MemoryJobStore) Close() error {
	return nil
}

// MemoryAuditStore is an in-memory governance.AuditStore.
type MemoryAuditStore struct {
	mu     sync.RWMutex
	events map[string]*governance.AuditEvent
}

// NewMemoryAuditStore creates an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{events: make(map[string]*governance.AuditEvent)}
}

// Append persists an event.
func (s *MemoryAuditStore) Append(ctx context.Context, ev *governance.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[ev.ID]; exists {
		return governance.NewStorageError("memory", "append", fmt.Errorf("event %s already exists", ev.ID))
	}
	s.events[ev.ID] = ev.Clone()
	return nil
}

// Get returns an event by id.
func (s *MemoryAuditStore) Get(ctx context.Context, id string) (*governance.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("audit event %s: %w", id, governance.ErrNotFound)
	}
	return ev.Clone(), nil
}

// Query returns events matching q ordered by timestamp.
func (s *MemoryAuditStore) Query(ctx context.Context, q *governance.AuditQuery) ([]*governance.AuditEvent, error) {
	s.mu.RLock()
	matched := s.matchLocked(q)
	s.mu.RUnlock()

	desc := q != nil && strings.EqualFold(q.SortOrder, "desc")
	slices.SortFunc(matched, func(a, b *governance.AuditEvent) int {
		c := cmp.Or(a.Timestamp.Compare(b.Timestamp), strings.Compare(a.ID, b.ID))
		if desc {
			return -c
		}
		return c
	})

	if q != nil && q.Limit > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		end := min(q.Offset+q.Limit, len(matched))
		matched = matched[q.Offset:end]
	}

	out := make([]*governance.AuditEvent, len(matched))
	for i, ev := range matched {
		out[i] = ev.Clone()
	}
	return out, nil
}

// Count returns the number of events matching q.
func (s *MemoryAuditStore) Count(ctx context.Context, q *governance.AuditQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matchLocked(q))), nil
}

// Delete removes every event matching q.
func (s *MemoryAuditStore) Delete(ctx context.Context, q *governance.AuditQuery) (int64, error) {
	if q == nil {
		return 0, governance.NewStorageError("memory", "delete", errors.New("delete requires a query"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.matchLocked(q)
	for _, ev := range matched {
		delete(s.events, ev.ID)
	}
	return int64(len(matched)), nil
}

// DeleteExpired removes up to limit events with timestamp at or before cutoff.
func (s *MemoryAuditStore) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*governance.AuditEvent
	for _, ev := range s.events {
		if !ev.Timestamp.After(cutoff) {
			expired = append(expired, ev)
		}
	}
	slices.SortFunc(expired, func(a, b *governance.AuditEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, ev := range expired {
		delete(s.events, ev.ID)
	}
	return int64(len(expired)), nil
}

// Close is a no-op.
func (s *MemoryAuditStore) Close() error {
	return nil
}

func (s *MemoryAuditStore) matchLocked(q *governance.AuditQuery) []*governance.AuditEvent {
	var out []*governance.AuditEvent
	for _, ev := range s.events {
		if q.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}
