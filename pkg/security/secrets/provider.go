// Package secrets resolves named secrets from the environment and from
// mounted secret files, and builds the audit HMAC key ring on top of them.
package secrets

import "context"

// SecretProvider retrieves secrets from a backend.
type SecretProvider interface {
	// GetSecret retrieves a secret by name.
	GetSecret(ctx context.Context, name string) (string, error)

	// ListSecrets returns the secret names the provider can serve.
	// Values are never included.
	ListSecrets(ctx context.Context) ([]string, error)

	// Provider returns the provider name (env, file).
	Provider() string

	// Supports reports whether the provider may hold the named secret.
	Supports(name string) bool
}

// RefreshableProvider can reload secrets without restart.
type RefreshableProvider interface {
	SecretProvider

	// Refresh drops anything the provider has cached.
	Refresh(ctx context.Context) error
}
