/*
Package secrets resolves named secrets for the service.

Two providers are available. EnvProvider reads STEWARD_SECRET_<NAME>
variables; FileProvider reads one file per secret from a mounted directory
and, when watching, drops its cache as files are rotated. A Manager chains
providers in order and caches resolved values:

	files, _ := secrets.NewFileProvider("/var/run/secrets/steward", true)
	manager := secrets.NewManager(
		[]secrets.SecretProvider{files, secrets.NewEnvProvider(secrets.DefaultEnvPrefix)},
		secrets.CacheConfig{Enabled: true, TTL: 5 * time.Minute, MaxSize: 100},
	)

Configuration values may reference secrets as ${secret:name}; see
Manager.ResolveReferences.

# Audit key ring

KeyRing implements governance.KeyProvider over a Manager. The current key
signs new audit events, and retired keys stay listed so events they signed
still verify:

	ring, _ := secrets.NewKeyRing(manager,
		secrets.KeyRef{ID: "2026-07", Secret: "audit-hmac-key"},
		secrets.KeyRef{ID: "2026-01", Secret: "audit-hmac-key-2026-01"},
	)

Key values may be raw, or prefixed with "base64:" or "hex:". Keys shorter
than MinKeyLength bytes are rejected.
*/
package secrets
