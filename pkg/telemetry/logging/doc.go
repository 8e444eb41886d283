// Package logging builds the process slog logger.
//
// Components log through slog.Default().With("component", ...); Setup
// installs a handler that adds request-scoped fields from the context and,
// when RedactPII is set, scrubs values before they are written:
//
//	logger, err := logging.Setup(logging.Config{Level: "info", Format: "json", RedactPII: true})
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "purge requested", "actor", "alice@example.com")
//	// {"msg":"purge requested","actor":"***@***","request_id":"req-123",...}
//
// Values under credential-like keys (token, secret, password, api_key) are
// replaced outright. String values are matched against patterns for bearer
// tokens, API keys, passwords, email addresses and IPv4 addresses.
package logging
