package business

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"maturity-hq/steward/pkg/governance"
)

type memRecord struct {
	engagementID string
	createdAt    time.Time
	deletedAt    *time.Time
	value        any
}

// MemoryStore is an in-memory governance.BusinessStore.
type MemoryStore struct {
	mu          sync.RWMutex
	clock       governance.Clock
	engagements map[string]governance.Engagement
	records     map[governance.RecordKind]map[string]*memRecord
	members     []governance.Member
	logs        map[string]OperationalLog
	temp        map[string]TempEntry
}

// NewMemoryStore creates an empty in-memory business store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		clock:       governance.SystemClock,
		engagements: make(map[string]governance.Engagement),
		records:     make(map[governance.RecordKind]map[string]*memRecord),
		logs:        make(map[string]OperationalLog),
		temp:        make(map[string]TempEntry),
	}
	for kind := range kindTables {
		s.records[kind] = make(map[string]*memRecord)
	}
	return s
}

// SetClock overrides the time source used for soft-delete stamps.
func (s *MemoryStore) SetClock(clock governance.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// GetEngagement returns an engagement by id.
func (s *MemoryStore) GetEngagement(ctx context.Context, id string) (*governance.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engagements[id]
	if !ok {
		return nil, fmt.Errorf("engagement %s: %w", id, governance.ErrNotFound)
	}
	return &e, nil
}

// visible returns the visible records of kind for an engagement, oldest first.
func visible[T any](s *MemoryStore, kind governance.RecordKind, engagementID string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*memRecord
	var ids []string
	for id, r := range s.records[kind] {
		if r.engagementID == engagementID && r.deletedAt == nil {
			recs = append(recs, r)
			ids = append(ids, id)
		}
	}
	idx := make([]int, len(recs))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int {
		return cmp.Or(recs[a].createdAt.Compare(recs[b].createdAt), cmp.Compare(ids[a], ids[b]))
	})

	out := make([]T, 0, len(recs))
	for _, i := range idx {
		out = append(out, recs[i].value.(T))
	}
	return out
}

// ListAssessments returns the visible assessments of an engagement.
func (s *MemoryStore) ListAssessments(ctx context.Context, engagementID string) ([]governance.Assessment, error) {
	return visible[governance.Assessment](s, governance.KindAssessment, engagementID), nil
}

// ListAnswers returns the visible answers of an engagement.
func (s *MemoryStore) ListAnswers(ctx context.Context, engagementID string) ([]governance.Answer, error) {
	return visible[governance.Answer](s, governance.KindAnswer, engagementID), nil
}

// ListDocuments returns the visible document metadata of an engagement.
func (s *MemoryStore) ListDocuments(ctx context.Context, engagementID string) ([]governance.Document, error) {
	return visible[governance.Document](s, governance.KindDocument, engagementID), nil
}

// ListFindings returns the visible findings of an engagement.
func (s *MemoryStore) ListFindings(ctx context.Context, engagementID string) ([]governance.Finding, error) {
	return visible[governance.Finding](s, governance.KindFinding, engagementID), nil
}

// ListMembers returns the members of an engagement.
func (s *MemoryStore) ListMembers(ctx context.Context, engagementID string) ([]governance.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []governance.Member{}
	for _, m := range s.members {
		if m.EngagementID == engagementID {
			out = append(out, m)
		}
	}
	return out, nil
}

// RecordIDs returns the ids of an engagement's records of one kind.
func (s *MemoryStore) RecordIDs(ctx context.Context, kind governance.RecordKind, engagementID string, vis governance.Visibility) ([]string, error) {
	if _, err := tableFor(kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for id, r := range s.records[kind] {
		if r.engagementID != engagementID {
			continue
		}
		switch {
		case vis == governance.VisibilityVisible && r.deletedAt != nil:
			continue
		case vis == governance.VisibilityDeleted && r.deletedAt == nil:
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// SoftDelete hides visible records.
func (s *MemoryStore) SoftDelete(ctx context.Context, kind governance.RecordKind, ids []string) (int64, error) {
	return s.mutate(kind, ids, func(r *memRecord, now time.Time) bool {
		if r.deletedAt != nil {
			return false
		}
		r.deletedAt = &now
		return true
	})
}

// HardDelete removes soft-deleted records.
func (s *MemoryStore) HardDelete(ctx context.Context, kind governance.RecordKind, ids []string) (int64, error) {
	if _, err := tableFor(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if r, ok := s.records[kind][id]; ok && r.deletedAt != nil {
			delete(s.records[kind], id)
			n++
		}
	}
	return n, nil
}

// Recover restores soft-deleted records.
func (s *MemoryStore) Recover(ctx context.Context, kind governance.RecordKind, ids []string) (int64, error) {
	return s.mutate(kind, ids, func(r *memRecord, _ time.Time) bool {
		if r.deletedAt == nil {
			return false
		}
		r.deletedAt = nil
		return true
	})
}

func (s *MemoryStore) mutate(kind governance.RecordKind, ids []string, fn func(r *memRecord, now time.Time) bool) (int64, error) {
	if _, err := tableFor(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var n int64
	for _, id := range ids {
		if r, ok := s.records[kind][id]; ok && fn(r, now) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) put(kind governance.RecordKind, id, engagementID string, createdAt time.Time, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[kind][id]; exists {
		return fmt.Errorf("failed to insert %s: id %s already exists", kind, id)
	}
	if createdAt.IsZero() {
		createdAt = s.clock()
	}
	s.records[kind][id] = &memRecord{engagementID: engagementID, createdAt: createdAt, value: value}
	return nil
}

// CreateEngagement inserts an engagement.
func (s *MemoryStore) CreateEngagement(ctx context.Context, e governance.Engagement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.engagements[e.ID]; exists {
		return fmt.Errorf("failed to insert engagement: id %s already exists", e.ID)
	}
	if e.Status == "" {
		e.Status = "active"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	s.engagements[e.ID] = e
	return nil
}

// AddAssessment inserts an assessment.
func (s *MemoryStore) AddAssessment(ctx context.Context, a governance.Assessment) error {
	return s.put(governance.KindAssessment, a.ID, a.EngagementID, a.CreatedAt, a)
}

// AddAnswer inserts an answer.
func (s *MemoryStore) AddAnswer(ctx context.Context, a governance.Answer) error {
	return s.put(governance.KindAnswer, a.ID, a.EngagementID, a.UpdatedAt, a)
}

// AddDocument inserts document metadata.
func (s *MemoryStore) AddDocument(ctx context.Context, d governance.Document) error {
	return s.put(governance.KindDocument, d.ID, d.EngagementID, d.UploadedAt, d)
}

// AddFinding inserts a finding.
func (s *MemoryStore) AddFinding(ctx context.Context, f governance.Finding) error {
	return s.put(governance.KindFinding, f.ID, f.EngagementID, f.CreatedAt, f)
}

// AddMember inserts an engagement membership.
func (s *MemoryStore) AddMember(ctx context.Context, m governance.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.AddedAt.IsZero() {
		m.AddedAt = s.clock()
	}
	s.members = append(s.members, m)
	return nil
}

// AppendLog inserts an operational log line.
func (s *MemoryStore) AppendLog(ctx context.Context, l OperationalLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.clock()
	}
	s.logs[l.ID] = l
	return nil
}

// PutTemp stores a scratch value.
func (s *MemoryStore) PutTemp(ctx context.Context, e TempEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock()
	}
	s.temp[e.Key] = e
	return nil
}

// LogCount returns the number of operational log lines.
func (s *MemoryStore) LogCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}

// TempCount returns the number of scratch values.
func (s *MemoryStore) TempCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.temp)
}

// OperationalLogs returns the sweep target of the operational_logs category.
func (s *MemoryStore) OperationalLogs() governance.Sweepable {
	return governance.SweepFunc(func(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return deleteOldest(s.logs, func(l OperationalLog) time.Time { return l.CreatedAt }, cutoff, limit), nil
	})
}

// TempData returns the sweep target of the temp_data category.
func (s *MemoryStore) TempData() governance.Sweepable {
	return governance.SweepFunc(func(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return deleteOldest(s.temp, func(e TempEntry) time.Time { return e.CreatedAt }, cutoff, limit), nil
	})
}

// deleteOldest removes up to limit entries created at or before cutoff.
func deleteOldest[V any](m map[string]V, created func(V) time.Time, cutoff time.Time, limit int) int64 {
	var keys []string
	for k, v := range m {
		if !created(v).After(cutoff) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Or(created(m[a]).Compare(created(m[b])), cmp.Compare(a, b))
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	for _, k := range keys {
		delete(m, k)
	}
	return int64(len(keys))
}
