// Package config provides configuration management for Steward.
//
// Configuration is loaded from a YAML file, filled with defaults, overridden
// from the environment and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("steward.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("steward.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention STEWARD_SECTION_FIELD:
//
//   - STEWARD_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - STEWARD_GATE_BACKEND overrides gate.backend
//   - STEWARD_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A variable that does not parse is reported as a validation error.
//
// # Secrets
//
// Credentials are never stored in the file. Fields documented as accepting
// references (gate.redis.password, export.s3.*_key*, auth.api_keys[].key)
// take ${secret:name} values that are resolved through the secrets manager
// at startup. Audit HMAC keys are named by secret in audit.key.secret.
//
// # Process Configuration
//
// The CLI stores the loaded configuration with SetConfig. The run command
// calls ReloadConfig on SIGHUP and reads the result with GetConfig:
//
//	if err := config.ReloadConfig("steward.yaml"); err != nil {
//	    logger.Error("reload failed", "error", err)
//	}
//	cfg := config.GetConfig()
//
// Tests should pass explicit Config instances instead.
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//
//	storage:
//	  governance:
//	    backend: sqlite
//	    sqlite:
//	      path: /var/lib/steward/governance.db
//	  business:
//	    path: /var/lib/steward/business.db
//
//	retention:
//	  schedule: "0 3 * * *"
//	  policies:
//	    - category: operational_logs
//	      ttl_days: 30
//
//	audit:
//	  key:
//	    id: k2026
//	    secret: audit_hmac_k2026
//	  historical:
//	    - id: k2025
//	      secret: audit_hmac_k2025
package config
