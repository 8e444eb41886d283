// Package audit implements the tamper-evident audit trail.
//
// Every event is tagged with HMAC-SHA256 over a canonical serialization of
// the event without its tag. Editing any stored field of a past event, for
// example its details, makes the tag stop verifying, and VerifyRange reports
// the event id. Mismatches are reported, never corrected.
//
// Event payloads are typed at the API boundary: each Details variant maps to
// one event type and is flattened into a generic map only for storage.
//
//	trail := audit.NewTrail(store, keyRing)
//	id, err := trail.Append(ctx, audit.Entry{
//	    Actor:         "alice",
//	    EngagementID:  "eng-1",
//	    CorrelationID: jobID,
//	    Details:       audit.PurgeCompleted{JobID: jobID, Removed: counts},
//	})
//
//	result, err := trail.VerifyRange(ctx, from, to)
//	if !result.Valid {
//	    // result.Failures holds the ids of events that no longer verify
//	}
package audit
