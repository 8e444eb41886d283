package audit

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"maturity-hq/steward/pkg/governance"
)

// canonicalEvent fixes the field order of the tagged serialization. KeyID and
// IntegrityTag are not part of it.
type canonicalEvent struct {
	ID            string         `json:"id"`
	EventType     string         `json:"event_type"`
	Timestamp     string         `json:"timestamp"`
	Actor         string         `json:"actor"`
	EngagementID  string         `json:"engagement_id"`
	CorrelationID string         `json:"correlation_id"`
	Details       map[string]any `json:"details"`
}

// Canonicalize returns the bytes an integrity tag is computed over: a JSON
// object with fixed field order, the timestamp in UTC RFC3339Nano and
// details keys sorted.
func Canonicalize(ev *governance.AuditEvent) ([]byte, error) {
	details := ev.Details
	if details == nil {
		details = map[string]any{}
	}
	c := canonicalEvent{
		ID:            ev.ID,
		EventType:     string(ev.EventType),
		Timestamp:     ev.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:         ev.Actor,
		EngagementID:  ev.EngagementID,
		CorrelationID: ev.CorrelationID,
		Details:       details,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to canonicalize event %s: %w", ev.ID, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeTag returns the hex HMAC-SHA256 of the event's canonical bytes.
func ComputeTag(key []byte, ev *governance.AuditEvent) (string, error) {
	if len(key) == 0 {
		return "", errors.New("empty HMAC key")
	}
	data, err := Canonicalize(ev)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyTag checks the event's tag against each key in order and returns the
// id of the key that matched. A non-matching tag yields an IntegrityError.
func VerifyTag(keys []governance.HMACKey, ev *governance.AuditEvent) (string, error) {
	if ev.IntegrityTag == "" {
		return "", governance.NewIntegrityError(ev.ID, "missing integrity tag")
	}
	stored, err := hex.DecodeString(ev.IntegrityTag)
	if err != nil {
		return "", governance.NewIntegrityError(ev.ID, "malformed integrity tag")
	}
	data, err := Canonicalize(ev)
	if err != nil {
		return "", err
	}

	for _, key := range keys {
		mac := hmac.New(sha256.New, key.Secret)
		mac.Write(data)
		if hmac.Equal(stored, mac.Sum(nil)) {
			return key.ID, nil
		}
	}
	return "", governance.NewIntegrityError(ev.ID, "integrity tag mismatch")
}
