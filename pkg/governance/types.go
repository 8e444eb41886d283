package governance

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// JobType identifies the handler that executes a job.
type JobType string

const (
	JobTypeExport         JobType = "export"
	JobTypePurge          JobType = "purge"
	JobTypeTTLCleanup     JobType = "ttl_cleanup"
	JobTypeAuditRetention JobType = "audit_retention"
)

// AllJobTypes returns every job type the worker pool knows about.
func AllJobTypes() []JobType {
	return []JobType{JobTypeExport, JobTypePurge, JobTypeTTLCleanup, JobTypeAuditRetention}
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	return slices.Contains(AllJobTypes(), t)
}

// Scoped reports whether jobs of this type belong to a single engagement.
func (t JobType) Scoped() bool {
	return t == JobTypeExport || t == JobTypePurge
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Active reports whether a job in status s is still in flight.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// JobRecord is the single durable state holder of a governance job.
type JobRecord struct {
	// Identity
	ID            string  `json:"id"`             // UUID v4
	JobType       JobType `json:"job_type"`       // export, purge, ttl_cleanup, audit_retention
	EngagementID  string  `json:"engagement_id"`  // Empty for global maintenance jobs
	Actor         string  `json:"actor"`          // Requesting identity
	CorrelationID string  `json:"correlation_id"` // Root job id, shared by follow-up phases

	// State
	Status       JobStatus      `json:"status"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"` // Sanitized, user visible

	// Gate
	DedupKey              string `json:"dedup_key,omitempty"`
	ConfirmationTokenHash string `json:"confirmation_token_hash,omitempty"` // SHA-256 of the accepted token

	// Retry
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// Ownership
	WorkerID string `json:"worker_id,omitempty"`
	ClaimID  string `json:"claim_id,omitempty"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	AvailableAt time.Time  `json:"available_at"` // Earliest time the job may be claimed
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the record.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	c := *j
	c.Parameters = cloneMap(j.Parameters)
	c.Result = cloneMap(j.Result)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Param returns a parameter as a string, or "" when absent.
func (j *JobRecord) Param(key string) string {
	if v, ok := j.Parameters[key].(string); ok {
		return v
	}
	return ""
}

// ParamBool returns a boolean parameter, false when absent.
func (j *JobRecord) ParamBool(key string) bool {
	v, _ := j.Parameters[key].(bool)
	return v
}

// ParamInt returns an integer parameter. Parameters read back from storage
// may be json.Number or float64.
func (j *JobRecord) ParamInt(key string) (int, bool) {
	switch v := j.Parameters[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// ParamStrings returns a string list parameter.
func (j *JobRecord) ParamStrings(key string) []string {
	switch v := j.Parameters[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ParamTime returns an RFC3339Nano timestamp parameter.
func (j *JobRecord) ParamTime(key string) (time.Time, bool) {
	s := j.Param(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}

// EventType names an audit event.
type EventType string

const (
	EventExportRequested      EventType = "data_export_requested"
	EventExportCompleted      EventType = "data_export_completed"
	EventExportFailed         EventType = "data_export_failed"
	EventPurgeChallenge       EventType = "data_purge_challenge_issued"
	EventPurgeRequested       EventType = "data_purge_requested"
	EventPurgeSoftDeleted     EventType = "data_purge_soft_deleted"
	EventPurgeGraceSkipped    EventType = "data_purge_grace_skipped"
	EventPurgeCompleted       EventType = "data_purge_completed"
	EventPurgeRecovered       EventType = "data_purge_recovered"
	EventPurgeFailed          EventType = "data_purge_failed"
	EventTTLSweepCompleted    EventType = "ttl_sweep_completed"
	EventTTLSweepFailed       EventType = "ttl_sweep_failed"
	EventTTLCleanupFailed     EventType = "ttl_cleanup_failed"
	EventAuditRetentionFailed EventType = "audit_retention_failed"
	EventJobRequeued          EventType = "job_requeued"

	// EventActivity records ordinary user activity. It is the only
	// non-governance event type and the only one an audit_logs purge removes.
	EventActivity EventType = "activity"
)

// GovernanceEventTypes returns every event type that documents governance
// operations.
func GovernanceEventTypes() []EventType {
	return []EventType{
		EventExportRequested, EventExportCompleted, EventExportFailed,
		EventPurgeChallenge, EventPurgeRequested, EventPurgeSoftDeleted,
		EventPurgeGraceSkipped, EventPurgeCompleted, EventPurgeRecovered,
		EventPurgeFailed, EventTTLSweepCompleted, EventTTLSweepFailed,
		EventTTLCleanupFailed, EventAuditRetentionFailed, EventJobRequeued,
	}
}

// Governance reports whether e documents a governance operation.
func (e EventType) Governance() bool {
	return e != "" && e != EventActivity
}

// FailedEvent returns the *_failed event type emitted when a job of type t fails.
func FailedEvent(t JobType) EventType {
	switch t {
	case JobTypeExport:
		return EventExportFailed
	case JobTypePurge:
		return EventPurgeFailed
	case JobTypeTTLCleanup:
		return EventTTLCleanupFailed
	case JobTypeAuditRetention:
		return EventAuditRetentionFailed
	}
	return EventType(string(t) + "_failed")
}

// AuditEvent is an immutable, integrity-tagged governance event.
type AuditEvent struct {
	ID            string         `json:"id"`
	EventType     EventType      `json:"event_type"`
	Timestamp     time.Time      `json:"timestamp"`
	Actor         string         `json:"actor"`
	EngagementID  string         `json:"engagement_id,omitempty"`
	Details       map[string]any `json:"details"`
	CorrelationID string         `json:"correlation_id"`
	KeyID         string         `json:"key_id"`
	IntegrityTag  string         `json:"integrity_tag"`
}

// Clone returns a deep copy of the event.
func (e *AuditEvent) Clone() *AuditEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Details = cloneMap(e.Details)
	return &c
}

// AuditQuery defines filter parameters for querying audit events.
type AuditQuery struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	EngagementID         string      `json:"engagement_id,omitempty"`
	EventTypes           []EventType `json:"event_types,omitempty"`
	ExcludeEventTypes    []EventType `json:"exclude_event_types,omitempty"`
	CorrelationID        string      `json:"correlation_id,omitempty"`
	ExcludeCorrelationID string      `json:"exclude_correlation_id,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting by timestamp
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Matches reports whether ev satisfies the query filters. Pagination and
// ordering are ignored.
func (q *AuditQuery) Matches(ev *AuditEvent) bool {
	if q == nil {
		return true
	}
	if q.StartTime != nil && ev.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && ev.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.EngagementID != "" && ev.EngagementID != q.EngagementID {
		return false
	}
	if len(q.EventTypes) > 0 && !slices.Contains(q.EventTypes, ev.EventType) {
		return false
	}
	if slices.Contains(q.ExcludeEventTypes, ev.EventType) {
		return false
	}
	if q.CorrelationID != "" && ev.CorrelationID != q.CorrelationID {
		return false
	}
	if q.ExcludeCorrelationID != "" && ev.CorrelationID == q.ExcludeCorrelationID {
		return false
	}
	return true
}

// Retention categories.
const (
	CategoryOperationalLogs = "operational_logs"
	CategoryTempData        = "temp_data"
	CategoryExportArtifacts = "export_artifacts"
	CategoryJobRecords      = "job_records"
	CategoryAuditLogs       = "audit_logs"

	// Primary business data. Never swept by TTL.
	CategoryEngagements = "engagements"
	CategoryAssessments = "assessments"
	CategoryDocuments   = "documents"
	CategoryFindings    = "findings"
)

// IsPrimaryBusinessData reports whether category holds records that may only
// be removed by an explicit purge.
func IsPrimaryBusinessData(category string) bool {
	switch category {
	case CategoryEngagements, CategoryAssessments, CategoryDocuments, CategoryFindings:
		return true
	}
	return false
}

// PurgeCategories returns the categories a purge request may name.
func PurgeCategories() []string {
	return []string{CategoryAssessments, CategoryDocuments, CategoryFindings, CategoryAuditLogs}
}

// RetentionPolicy is the TTL configuration of one data category.
type RetentionPolicy struct {
	Category string        `json:"category" yaml:"category"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"` // 0 means no automatic expiry
	Enabled  bool          `json:"enabled" yaml:"enabled"`
}

// TTLSeconds returns the TTL in whole seconds.
func (p RetentionPolicy) TTLSeconds() int64 {
	return int64(p.TTL / time.Second)
}

// Sweepable reports whether the sweeper may act on this policy.
func (p RetentionPolicy) Sweepable() bool {
	return p.Enabled && p.TTL > 0 && !IsPrimaryBusinessData(p.Category)
}

// ArtifactRef locates an artifact written to a blob sink.
type ArtifactRef struct {
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"` // "sha256:<hex>"
}

// Map returns the reference as a job result map.
func (r ArtifactRef) Map() map[string]any {
	return map[string]any{
		"location": r.Location,
		"size":     r.Size,
		"checksum": r.Checksum,
	}
}

// Clock returns the current time. Tests substitute fixed clocks.
type Clock func() time.Time

// SystemClock returns the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch tv := v.(type) {
		case map[string]any:
			out[k] = cloneMap(tv)
		case []string:
			out[k] = slices.Clone(tv)
		case map[string]int64:
			out[k] = maps.Clone(tv)
		default:
			out[k] = v
		}
	}
	return out
}
