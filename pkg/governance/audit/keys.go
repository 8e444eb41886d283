package audit

import (
	"context"
	"errors"

	"maturity-hq/steward/pkg/governance"
)

// StaticKeys is a fixed key ring. Production deployments resolve keys
// through the secrets manager; StaticKeys serves tests and offline
// verification tooling.
type StaticKeys struct {
	Current    governance.HMACKey
	Historical []governance.HMACKey
}

// GetHMACKey returns the current key.
func (k *StaticKeys) GetHMACKey(ctx context.Context) (governance.HMACKey, error) {
	if len(k.Current.Secret) == 0 {
		return governance.HMACKey{}, errors.New("no current HMAC key configured")
	}
	return k.Current, nil
}

// HistoricalKeys returns the retired keys.
func (k *StaticKeys) HistoricalKeys(ctx context.Context) ([]governance.HMACKey, error) {
	return k.Historical, nil
}
