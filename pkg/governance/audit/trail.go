package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"maturity-hq/steward/pkg/governance"
)

// DefaultVerifyBatchSize is the page size VerifyRange reads events in.
const DefaultVerifyBatchSize = 500

// Entry is an event to append. The trail assigns id, timestamp and tag.
type Entry struct {
	Actor         string
	EngagementID  string
	CorrelationID string
	Details       Details
}

// VerifyResult is the outcome of verifying a set of events.
type VerifyResult struct {
	Valid    bool     `json:"valid"`
	Checked  int      `json:"checked"`
	Failures []string `json:"failures"`
}

// Option configures a Trail.
type Option func(*Trail)

// WithClock sets the clock used to timestamp events.
func WithClock(clock governance.Clock) Option {
	return func(t *Trail) { t.clock = clock }
}

// WithVerifyBatchSize sets the page size used by VerifyRange.
func WithVerifyBatchSize(n int) Option {
	return func(t *Trail) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

// WithIntegrityHook registers a callback invoked for every event that fails
// verification.
func WithIntegrityHook(hook func(eventID string)) Option {
	return func(t *Trail) { t.onIntegrityFailure = hook }
}

// Trail is the tamper-evident audit trail. Every appended event carries an
// HMAC tag computed with the current key; verification accepts the current
// key and any historical key so rotation does not invalidate old events.
type Trail struct {
	store              governance.AuditStore
	keys               governance.KeyProvider
	clock              governance.Clock
	batchSize          int
	onIntegrityFailure func(eventID string)
	logger             *slog.Logger
}

// NewTrail creates a trail over store using keys for integrity tags.
func NewTrail(store governance.AuditStore, keys governance.KeyProvider, opts ...Option) *Trail {
	t := &Trail{
		store:     store,
		keys:      keys,
		clock:     governance.SystemClock,
		batchSize: DefaultVerifyBatchSize,
		logger:    slog.Default().With("component", "audit.trail"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append tags and persists an event and returns its id.
func (t *Trail) Append(ctx context.Context, e Entry) (string, error) {
	if e.Details == nil {
		return "", errors.New("audit entry has no details")
	}
	key, err := t.keys.GetHMACKey(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get HMAC key: %w", err)
	}

	ev := &governance.AuditEvent{
		ID:            uuid.New().String(),
		EventType:     e.Details.EventType(),
		Timestamp:     t.clock().UTC(),
		Actor:         e.Actor,
		EngagementID:  e.EngagementID,
		Details:       Scrub(e.Details.Fields()),
		CorrelationID: e.CorrelationID,
		KeyID:         key.ID,
	}
	tag, err := ComputeTag(key.Secret, ev)
	if err != nil {
		return "", err
	}
	ev.IntegrityTag = tag

	if err := t.store.Append(ctx, ev); err != nil {
		return "", fmt.Errorf("failed to append audit event: %w", err)
	}

	t.logger.Debug("audit event appended",
		"event_id", ev.ID,
		"event_type", ev.EventType,
		"engagement_id", ev.EngagementID,
		"correlation_id", ev.CorrelationID,
	)
	return ev.ID, nil
}

// GetVerified returns an event after recomputing its tag. A mismatch is
// returned as an IntegrityError together with the event.
func (t *Trail) GetVerified(ctx context.Context, id string) (*governance.AuditEvent, error) {
	ev, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	keys, err := t.keyRing(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := VerifyTag(keys, ev); err != nil {
		t.reportFailure(ev.ID, err)
		return ev, err
	}
	return ev, nil
}

// Query returns events matching q.
func (t *Trail) Query(ctx context.Context, q *governance.AuditQuery) ([]*governance.AuditEvent, error) {
	return t.store.Query(ctx, q)
}

// Count returns the number of events matching q, ignoring pagination.
func (t *Trail) Count(ctx context.Context, q *governance.AuditQuery) (int64, error) {
	return t.store.Count(ctx, q)
}

// VerifyRange recomputes the tag of every event with a timestamp in
// [from, to] and reports the ids of events that do not verify.
func (t *Trail) VerifyRange(ctx context.Context, from, to time.Time) (*VerifyResult, error) {
	if to.Before(from) {
		return nil, governance.NewValidationError("to", "end of range is before start")
	}
	return t.verify(ctx, &governance.AuditQuery{StartTime: &from, EndTime: &to})
}

// VerifyCorrelation verifies every event of one job execution.
func (t *Trail) VerifyCorrelation(ctx context.Context, correlationID string) (*VerifyResult, error) {
	if correlationID == "" {
		return nil, governance.NewValidationError("correlation_id", "required")
	}
	return t.verify(ctx, &governance.AuditQuery{CorrelationID: correlationID})
}

func (t *Trail) verify(ctx context.Context, base *governance.AuditQuery) (*VerifyResult, error) {
	keys, err := t.keyRing(ctx)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true, Failures: []string{}}
	q := *base
	q.SortOrder = "asc"
	q.Limit = t.batchSize
	for {
		events, err := t.store.Query(ctx, &q)
		if err != nil {
			return nil, fmt.Errorf("failed to read events for verification: %w", err)
		}
		for _, ev := range events {
			result.Checked++
			if _, err := VerifyTag(keys, ev); err != nil {
				if !governance.IsIntegrity(err) {
					return nil, err
				}
				result.Valid = false
				result.Failures = append(result.Failures, ev.ID)
				t.reportFailure(ev.ID, err)
			}
		}
		if len(events) < q.Limit {
			break
		}
		q.Offset += len(events)
	}
	return result, nil
}

// PurgeOperational removes an engagement's non-governance events. Events of
// the protected correlation id are never removed, nor is any governance
// event. With dryRun set the eligible events are only counted.
func (t *Trail) PurgeOperational(ctx context.Context, engagementID, protectCorrelationID string, dryRun bool) (int64, error) {
	if engagementID == "" {
		return 0, governance.NewInvariantViolation("audit_chain_protection", "operational purge requires an engagement scope")
	}
	if protectCorrelationID == "" {
		return 0, governance.NewInvariantViolation("audit_chain_protection", "operational purge requires the purge correlation id")
	}

	q := &governance.AuditQuery{
		EngagementID:         engagementID,
		ExcludeEventTypes:    governance.GovernanceEventTypes(),
		ExcludeCorrelationID: protectCorrelationID,
	}
	if dryRun {
		return t.store.Count(ctx, q)
	}
	n, err := t.store.Delete(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("failed to purge operational audit events: %w", err)
	}
	t.logger.Info("operational audit events purged",
		"engagement_id", engagementID,
		"correlation_id", protectCorrelationID,
		"deleted", n,
	)
	return n, nil
}

// DeleteExpired removes events at or before cutoff. It backs the audit_logs
// retention category.
func (t *Trail) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return t.store.DeleteExpired(ctx, cutoff, limit)
}

func (t *Trail) keyRing(ctx context.Context) ([]governance.HMACKey, error) {
	current, err := t.keys.GetHMACKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get HMAC key: %w", err)
	}
	historical, err := t.keys.HistoricalKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical HMAC keys: %w", err)
	}
	return append([]governance.HMACKey{current}, historical...), nil
}

func (t *Trail) reportFailure(eventID string, err error) {
	t.logger.Error("audit integrity verification failed",
		"event_id", eventID,
		"error", err,
	)
	if t.onIntegrityFailure != nil {
		t.onIntegrityFailure(eventID)
	}
}
