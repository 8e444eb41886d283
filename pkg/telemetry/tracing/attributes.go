package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by job, export and purge spans. Job payloads are
// never attached; they may reference personal data.
const (
	AttrJobID         = "steward.job.id"
	AttrJobType       = "steward.job.type"
	AttrRetryCount    = "steward.job.retry_count"
	AttrEngagementID  = "steward.engagement_id"
	AttrCorrelationID = "steward.correlation_id"
	AttrCategory      = "steward.retention.category"
	AttrDeleted       = "steward.retention.deleted"
	AttrArtifactSize  = "steward.artifact.size"
	AttrRequestID     = "steward.request_id"
	AttrActor         = "steward.actor"
)

// JobAttributes returns the attributes identifying a job. Empty engagement
// and correlation IDs are left out.
func JobAttributes(jobID, jobType, engagementID, correlationID string, retryCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrJobID, jobID),
		attribute.String(AttrJobType, jobType),
		attribute.Int(AttrRetryCount, retryCount),
	}
	if engagementID != "" {
		attrs = append(attrs, attribute.String(AttrEngagementID, engagementID))
	}
	if correlationID != "" {
		attrs = append(attrs, attribute.String(AttrCorrelationID, correlationID))
	}
	return attrs
}

// SetRequestAttributes sets the API request attributes on a span.
func SetRequestAttributes(span trace.Span, requestID, actor string) {
	attrs := make([]attribute.KeyValue, 0, 2)
	if requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	if actor != "" {
		attrs = append(attrs, attribute.String(AttrActor, actor))
	}
	span.SetAttributes(attrs...)
}

// SetSweepAttributes sets the outcome of a category sweep on a span.
func SetSweepAttributes(span trace.Span, category string, deleted int64) {
	span.SetAttributes(
		attribute.String(AttrCategory, category),
		attribute.Int64(AttrDeleted, deleted),
	)
}
