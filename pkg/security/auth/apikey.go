package auth

import (
	"crypto/sha256"
	"errors"
	"sync"
)

var (
	// ErrInvalidKey is returned for unknown keys.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrKeyDisabled is returned for keys that exist but are disabled.
	ErrKeyDisabled = errors.New("API key disabled")
)

// APIKeyValidator validates API keys against a configured set. Keys are
// indexed by their SHA-256 digest so the plaintext is not kept as a map key.
type APIKeyValidator struct {
	mu   sync.RWMutex
	keys map[[sha256.Size]byte]*APIKeyInfo
}

// NewAPIKeyValidator creates a validator over keys.
func NewAPIKeyValidator(keys []*APIKeyInfo) *APIKeyValidator {
	v := &APIKeyValidator{keys: make(map[[sha256.Size]byte]*APIKeyInfo, len(keys))}
	for _, k := range keys {
		v.keys[sha256.Sum256([]byte(k.Key))] = k
	}
	return v
}

// Validate returns the info of an enabled key.
func (v *APIKeyValidator) Validate(key string) (*APIKeyInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	info, ok := v.keys[sha256.Sum256([]byte(key))]
	if !ok {
		return nil, ErrInvalidKey
	}
	if !info.Enabled {
		return nil, ErrKeyDisabled
	}
	return info, nil
}

// List returns all configured keys.
func (v *APIKeyValidator) List() []*APIKeyInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]*APIKeyInfo, 0, len(v.keys))
	for _, k := range v.keys {
		keys = append(keys, k)
	}
	return keys
}

// Replace swaps the configured key set, as after a secret rotation.
func (v *APIKeyValidator) Replace(keys []*APIKeyInfo) {
	next := NewAPIKeyValidator(keys)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys = next.keys
}
