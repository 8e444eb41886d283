package governance

import (
	"context"
	"time"
)

// JobUpdate describes a transition out of processing.
type JobUpdate struct {
	Status       JobStatus      // completed, failed, or pending (requeue)
	Result       map[string]any // completed only
	ErrorMessage string         // failed, or last error of a requeued attempt
	At           time.Time      // Transition time; completed_at for terminal states
	AvailableAt  time.Time      // Requeue only: earliest next claim
}

// JobStore is the durable record of job requests and their transitions.
//
// Every mutation after creation is a compare-and-swap. ClaimNext and Claim
// move a job from pending to processing and stamp a fresh claim id; Update
// only succeeds while the job is processing under that same claim id. A lost
// race is reported as ErrNotClaimable.
type JobStore interface {
	// Create persists a new pending job and returns its id.
	Create(ctx context.Context, job *JobRecord) (string, error)

	// CreateUnique persists job unless an active (pending or processing) job
	// with the same dedup key exists, in which case the existing id is
	// returned with created=false.
	CreateUnique(ctx context.Context, job *JobRecord) (id string, created bool, err error)

	// FindActive returns the active job holding dedupKey, or ErrNotFound.
	FindActive(ctx context.Context, dedupKey string) (*JobRecord, error)

	// ClaimNext atomically claims the oldest claimable pending job of one of
	// the given types. It returns (nil, nil) when nothing is claimable.
	ClaimNext(ctx context.Context, types []JobType, workerID string, now time.Time) (*JobRecord, error)

	// Claim atomically claims one specific pending job regardless of its
	// available_at.
	Claim(ctx context.Context, id, workerID string, now time.Time) (*JobRecord, error)

	// Update applies a transition to a processing job owned by claimID.
	Update(ctx context.Context, id, claimID string, update JobUpdate) error

	// Get returns a job by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*JobRecord, error)

	// ListByEngagement returns an engagement's jobs, newest first. An empty
	// status matches every status.
	ListByEngagement(ctx context.Context, engagementID string, status JobStatus) ([]*JobRecord, error)

	// ListByStatus returns up to limit jobs in the given status, oldest first.
	ListByStatus(ctx context.Context, status JobStatus, limit int) ([]*JobRecord, error)

	// DeleteExpired removes up to limit terminal jobs created at or before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error)

	// Close releases resources.
	Close() error
}

// AuditStore persists audit events. It never modifies an event after Append.
type AuditStore interface {
	Append(ctx context.Context, event *AuditEvent) error
	Get(ctx context.Context, id string) (*AuditEvent, error)
	Query(ctx context.Context, query *AuditQuery) ([]*AuditEvent, error)
	Count(ctx context.Context, query *AuditQuery) (int64, error)

	// Delete removes every event matching query and returns the count.
	Delete(ctx context.Context, query *AuditQuery) (int64, error)

	// DeleteExpired removes up to limit events with timestamp at or before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error)

	Close() error
}

// BusinessStore is the engagement, assessment and document store owned by
// the business-data subsystem. Records carry a visibility flag; list
// operations return visible records only.
type BusinessStore interface {
	GetEngagement(ctx context.Context, id string) (*Engagement, error)
	ListAssessments(ctx context.Context, engagementID string) ([]Assessment, error)
	ListAnswers(ctx context.Context, engagementID string) ([]Answer, error)
	ListDocuments(ctx context.Context, engagementID string) ([]Document, error)
	ListFindings(ctx context.Context, engagementID string) ([]Finding, error)
	ListMembers(ctx context.Context, engagementID string) ([]Member, error)

	// RecordIDs returns the ids of an engagement's records of one kind.
	RecordIDs(ctx context.Context, kind RecordKind, engagementID string, vis Visibility) ([]string, error)

	// SoftDelete hides visible records and returns how many changed.
	SoftDelete(ctx context.Context, kind RecordKind, ids []string) (int64, error)

	// HardDelete physically removes soft-deleted records and returns how many
	// were removed. Visible records are left untouched.
	HardDelete(ctx context.Context, kind RecordKind, ids []string) (int64, error)

	// Recover restores soft-deleted records and returns how many changed.
	Recover(ctx context.Context, kind RecordKind, ids []string) (int64, error)
}

// BlobSink stores export artifacts.
type BlobSink interface {
	// Put writes data at path, overwriting any previous object.
	Put(ctx context.Context, path string, data []byte) (ArtifactRef, error)
	Delete(ctx context.Context, ref ArtifactRef) error
}

// HMACKey is one audit integrity key.
type HMACKey struct {
	ID     string
	Secret []byte
}

// KeyProvider supplies audit integrity keys.
type KeyProvider interface {
	// GetHMACKey returns the key new tags are computed with.
	GetHMACKey(ctx context.Context) (HMACKey, error)

	// HistoricalKeys returns retired keys, newest first, that still verify
	// older events.
	HistoricalKeys(ctx context.Context) ([]HMACKey, error)
}

// Sweepable is a store holding records of one retention category.
type Sweepable interface {
	// DeleteExpired removes up to limit records created at or before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// SweepFunc adapts a function to Sweepable.
type SweepFunc func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

// DeleteExpired calls f.
func (f SweepFunc) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return f(ctx, cutoff, limit)
}
