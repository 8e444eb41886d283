package secrets

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"maturity-hq/steward/pkg/governance"
)

// MinKeyLength is the minimum decoded length of an audit HMAC key.
const MinKeyLength = 32

// Source resolves secret values by name. Manager satisfies it.
type Source interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// KeyRef names a key ring entry: the key id recorded on audit events and
// the secret holding the key material.
type KeyRef struct {
	ID     string `yaml:"id"`
	Secret string `yaml:"secret"`
}

// KeyRing serves audit HMAC keys from a secret source. The current key
// signs new events; historical keys are only used to verify old ones.
//
// Key material is read on every call so a rotated secret takes effect as
// soon as the source stops caching the old value.
type KeyRing struct {
	source     Source
	current    KeyRef
	historical []KeyRef
	logger     *slog.Logger
}

// NewKeyRing creates a key ring. Key ids must be non-empty and unique.
func NewKeyRing(source Source, current KeyRef, historical ...KeyRef) (*KeyRing, error) {
	seen := make(map[string]bool)
	for _, ref := range append([]KeyRef{current}, historical...) {
		if ref.ID == "" || ref.Secret == "" {
			return nil, fmt.Errorf("key ring entry needs an id and a secret name")
		}
		if seen[ref.ID] {
			return nil, fmt.Errorf("duplicate key id %q in key ring", ref.ID)
		}
		seen[ref.ID] = true
	}
	return &KeyRing{
		source:     source,
		current:    current,
		historical: historical,
		logger:     slog.Default().With("component", "secrets.keyring"),
	}, nil
}

// GetHMACKey returns the current signing key.
func (k *KeyRing) GetHMACKey(ctx context.Context) (governance.HMACKey, error) {
	return k.resolve(ctx, k.current)
}

// HistoricalKeys returns the retired keys that still resolve. A retired key
// that cannot be resolved is skipped; events tagged with it then fail
// verification, which is reported rather than hidden.
func (k *KeyRing) HistoricalKeys(ctx context.Context) ([]governance.HMACKey, error) {
	keys := make([]governance.HMACKey, 0, len(k.historical))
	for _, ref := range k.historical {
		key, err := k.resolve(ctx, ref)
		if err != nil {
			k.logger.Warn("historical audit key unavailable", "key_id", ref.ID, "error", err)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (k *KeyRing) resolve(ctx context.Context, ref KeyRef) (governance.HMACKey, error) {
	value, err := k.source.GetSecret(ctx, ref.Secret)
	if err != nil {
		return governance.HMACKey{}, fmt.Errorf("failed to resolve audit key %s: %w", ref.ID, err)
	}
	secret, err := DecodeKey(value)
	if err != nil {
		return governance.HMACKey{}, fmt.Errorf("audit key %s: %w", ref.ID, err)
	}
	return governance.HMACKey{ID: ref.ID, Secret: secret}, nil
}

// DecodeKey decodes key material. Values prefixed "base64:" or "hex:" are
// decoded; anything else is used as raw bytes.
func DecodeKey(value string) ([]byte, error) {
	var (
		key []byte
		err error
	)
	switch {
	case strings.HasPrefix(value, "base64:"):
		key, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "base64:"))
	case strings.HasPrefix(value, "hex:"):
		key, err = hex.DecodeString(strings.TrimPrefix(value, "hex:"))
	default:
		key = []byte(value)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("key is %d bytes, need at least %d", len(key), MinKeyLength)
	}
	return key, nil
}
