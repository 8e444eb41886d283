package audit

import (
	"maps"
	"slices"

	"maturity-hq/steward/pkg/governance"
)

// Details is the typed payload of one audit event type. Each variant owns
// exactly one event type; Fields flattens it into the generic map stored on
// the event.
//
// Variants carry identifiers, counts and enumerations only. Free text
// supplied by callers goes through Activity, whose fields are scrubbed.
type Details interface {
	EventType() governance.EventType
	Fields() map[string]any
}

// ExportRequested is recorded when an export job is accepted.
type ExportRequested struct {
	JobID            string
	IncludeDocuments bool
	Format           string
}

func (ExportRequested) EventType() governance.EventType { return governance.EventExportRequested }

func (d ExportRequested) Fields() map[string]any {
	return map[string]any{
		"job_id":            d.JobID,
		"include_documents": d.IncludeDocuments,
		"format":            d.Format,
	}
}

// ExportCompleted is recorded when an export bundle was written.
type ExportCompleted struct {
	JobID         string
	ExportVersion string
	Size          int64
	Checksum      string
	Counts        map[string]int
}

func (ExportCompleted) EventType() governance.EventType { return governance.EventExportCompleted }

func (d ExportCompleted) Fields() map[string]any {
	counts := make(map[string]any, len(d.Counts))
	for k, v := range d.Counts {
		counts[k] = v
	}
	return map[string]any{
		"job_id":         d.JobID,
		"export_version": d.ExportVersion,
		"size":           d.Size,
		"checksum":       d.Checksum,
		"counts":         counts,
	}
}

// JobFailed is recorded when any job fails. Its event type follows the job
// type (data_export_failed, data_purge_failed, ...).
type JobFailed struct {
	JobID      string
	JobType    governance.JobType
	Reason     string // sanitized message
	RetryCount int
}

func (d JobFailed) EventType() governance.EventType { return governance.FailedEvent(d.JobType) }

func (d JobFailed) Fields() map[string]any {
	return map[string]any{
		"job_id":      d.JobID,
		"job_type":    string(d.JobType),
		"reason":      d.Reason,
		"retry_count": d.RetryCount,
	}
}

// JobRequeued is recorded when the reaper returns a stuck job to pending.
type JobRequeued struct {
	JobID      string
	JobType    governance.JobType
	RetryCount int
}

func (JobRequeued) EventType() governance.EventType { return governance.EventJobRequeued }

func (d JobRequeued) Fields() map[string]any {
	return map[string]any{
		"job_id":      d.JobID,
		"job_type":    string(d.JobType),
		"retry_count": d.RetryCount,
	}
}

// PurgeChallengeIssued is recorded when a confirmation challenge is issued.
// The challenge itself is never recorded.
type PurgeChallengeIssued struct {
	Operation string
	ExpiresAt string // RFC3339
}

func (PurgeChallengeIssued) EventType() governance.EventType { return governance.EventPurgeChallenge }

func (d PurgeChallengeIssued) Fields() map[string]any {
	return map[string]any{
		"operation":  d.Operation,
		"expires_at": d.ExpiresAt,
	}
}

// PurgeRequested is recorded when a purge job is accepted.
type PurgeRequested struct {
	JobID           string
	Categories      []string
	RetentionDays   int
	SkipGracePeriod bool
}

func (PurgeRequested) EventType() governance.EventType { return governance.EventPurgeRequested }

func (d PurgeRequested) Fields() map[string]any {
	return map[string]any{
		"job_id":            d.JobID,
		"categories":        sortedCopy(d.Categories),
		"retention_days":    d.RetentionDays,
		"skip_grace_period": d.SkipGracePeriod,
	}
}

// PurgeCounts holds per-category counts. Each category appears as a
// top-level detail key so consumers can read details.<category> directly.
type PurgeCounts map[string]int64

func (c PurgeCounts) apply(m map[string]any) {
	cats := slices.Sorted(maps.Keys(c))
	for _, cat := range cats {
		m[cat] = c[cat]
	}
	m["categories"] = cats
}

// PurgeSoftDeleted is recorded after the soft-delete phase.
type PurgeSoftDeleted struct {
	JobID         string
	Affected      PurgeCounts // newly hidden in this run
	RetentionDays int
}

func (PurgeSoftDeleted) EventType() governance.EventType { return governance.EventPurgeSoftDeleted }

func (d PurgeSoftDeleted) Fields() map[string]any {
	m := map[string]any{
		"job_id":         d.JobID,
		"retention_days": d.RetentionDays,
	}
	d.Affected.apply(m)
	return m
}

// PurgeGraceSkipped is recorded when an administrator skips the grace period.
type PurgeGraceSkipped struct {
	JobID         string
	RetentionDays int
	Reason        string
}

func (PurgeGraceSkipped) EventType() governance.EventType { return governance.EventPurgeGraceSkipped }

func (d PurgeGraceSkipped) Fields() map[string]any {
	return map[string]any{
		"job_id":                  d.JobID,
		"waived_retention_days":   d.RetentionDays,
		"reason":                  d.Reason,
		"administrative_override": true,
	}
}

// PurgeCompleted is recorded after records were physically removed.
type PurgeCompleted struct {
	JobID   string
	Removed PurgeCounts
}

func (PurgeCompleted) EventType() governance.EventType { return governance.EventPurgeCompleted }

func (d PurgeCompleted) Fields() map[string]any {
	m := map[string]any{"job_id": d.JobID}
	d.Removed.apply(m)
	return m
}

// PurgeRecovered is recorded when soft-deleted records were restored.
type PurgeRecovered struct {
	JobID     string
	Recovered PurgeCounts
}

func (PurgeRecovered) EventType() governance.EventType { return governance.EventPurgeRecovered }

func (d PurgeRecovered) Fields() map[string]any {
	m := map[string]any{"job_id": d.JobID}
	d.Recovered.apply(m)
	return m
}

// TTLSweepCompleted summarizes one category of one sweep.
type TTLSweepCompleted struct {
	Category   string
	Deleted    int64
	Batches    int
	Cutoff     string // RFC3339Nano
	TTLSeconds int64
}

func (TTLSweepCompleted) EventType() governance.EventType { return governance.EventTTLSweepCompleted }

func (d TTLSweepCompleted) Fields() map[string]any {
	return map[string]any{
		"category":    d.Category,
		"deleted":     d.Deleted,
		"batches":     d.Batches,
		"cutoff":      d.Cutoff,
		"ttl_seconds": d.TTLSeconds,
	}
}

// TTLSweepFailed records a category whose sweep failed.
type TTLSweepFailed struct {
	Category string
	Deleted  int64 // deleted before the failure
	Reason   string
}

func (TTLSweepFailed) EventType() governance.EventType { return governance.EventTTLSweepFailed }

func (d TTLSweepFailed) Fields() map[string]any {
	return map[string]any{
		"category": d.Category,
		"deleted":  d.Deleted,
		"reason":   d.Reason,
	}
}

// MaxAttributeLength bounds each activity attribute value.
const MaxAttributeLength = 256

// Activity is an ordinary, non-governance user activity record. These are
// the only events an audit_logs purge may remove.
type Activity struct {
	Action     string
	Attributes map[string]string
}

func (Activity) EventType() governance.EventType { return governance.EventActivity }

// Fields returns the action and scrubbed attributes.
func (d Activity) Fields() map[string]any {
	m := make(map[string]any, len(d.Attributes)+1)
	for k, v := range d.Attributes {
		m[k] = TruncateString(v, MaxAttributeLength)
	}
	m["action"] = d.Action
	return Scrub(m)
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
