package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"maturity-hq/steward/pkg/governance"
)

// DedupKey derives the key under which at most one active job may exist.
// Scopes are sorted and de-duplicated first, so {b, a, a} and {a, b} give
// the same key.
func DedupKey(engagementID string, jobType governance.JobType, scopes ...string) string {
	normalized := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			normalized = append(normalized, s)
		}
	}
	slices.Sort(normalized)
	normalized = slices.Compact(normalized)

	h := sha256.New()
	h.Write([]byte(engagementID))
	h.Write([]byte{0})
	h.Write([]byte(jobType))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(normalized, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
