package auth

import "time"

// APIKeyInfo is a configured API key and the caller it authenticates.
type APIKeyInfo struct {
	Key       string
	Actor     string
	Admin     bool
	Enabled   bool
	CreatedAt time.Time
}

// APIKeyStore validates API keys.
type APIKeyStore interface {
	Validate(key string) (*APIKeyInfo, error)
	List() []*APIKeyInfo
}
