package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RedactedValue replaces scrubbed detail values.
const RedactedValue = "[REDACTED]"

// sensitiveKeyParts mark detail keys whose values must never be stored.
var sensitiveKeyParts = []string{
	"password", "secret", "token", "authorization", "api_key", "apikey",
	"email", "phone", "ssn", "address", "cookie",
}

// Scrub replaces the values of sensitive-looking keys in m, recursively,
// and returns m.
func Scrub(m map[string]any) map[string]any {
	for k, v := range m {
		if isSensitiveKey(k) {
			m[k] = RedactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			m[k] = Scrub(nested)
		}
	}
	return m
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// HashToken hashes a confirmation token for storage on a job record. The
// token cannot be recovered from the hash.
//
// Returns an empty string if the token is empty.
func HashToken(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(hash[:])
}

// TruncateString truncates s to maxLen bytes, appending "..." when cut.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
