package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "steward.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:8080"
  read_timeout: 60s

storage:
  governance:
    backend: sqlite
    sqlite:
      path: ./governance.db
  business:
    backend: memory

jobs:
  workers: 2
  timeouts:
    export: 45m

gate:
  backend: redis
  redis:
    address: redis:6379
    password: "${secret:redis_password}"

retention:
  schedule: "0 3 * * *"
  policies:
    - category: operational_logs
      ttl_days: 30
    - category: temp_data
      ttl: 12h
      enabled: false

audit:
  key:
    id: k2
    secret: audit_k2
  historical:
    - id: k1
      secret: audit_k1

telemetry:
  logging:
    level: debug
    format: text
    redact_pii: false
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:8080" || cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Storage.Business.Backend != "memory" {
		t.Errorf("expected memory business backend, got %q", cfg.Storage.Business.Backend)
	}
	if cfg.Jobs.Workers != 2 || cfg.Jobs.Timeouts["export"] != 45*time.Minute {
		t.Errorf("unexpected jobs config %+v", cfg.Jobs)
	}
	if cfg.Gate.Redis.Password != "${secret:redis_password}" {
		t.Errorf("expected secret reference kept verbatim, got %q", cfg.Gate.Redis.Password)
	}
	if len(cfg.Retention.Policies) != 2 || cfg.Retention.Policies[1].Enabled == nil || *cfg.Retention.Policies[1].Enabled {
		t.Errorf("unexpected retention policies %+v", cfg.Retention.Policies)
	}
	if len(cfg.Audit.Historical) != 1 || cfg.Audit.Historical[0].ID != "k1" {
		t.Errorf("unexpected historical keys %+v", cfg.Audit.Historical)
	}
	if cfg.Telemetry.Logging.RedactEnabled() || cfg.Telemetry.Metrics.IsEnabled() {
		t.Error("expected redaction and metrics disabled")
	}
	// Defaults fill what the file leaves out.
	if cfg.Gate.TokenLength != DefaultGateTokenLength {
		t.Errorf("expected default token length, got %d", cfg.Gate.TokenLength)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "server: [unterminated")
		if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "failed to parse") {
			t.Errorf("expected parse error, got %v", err)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "jobs:\n  workers: -1\n")
		_, err := LoadConfig(path)
		var verr ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8080"
storage:
  governance:
    backend: memory
  business:
    backend: memory
`)

	t.Setenv("STEWARD_SERVER_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("STEWARD_JOBS_WORKERS", "7")
	t.Setenv("STEWARD_GATE_CHALLENGE_TTL", "5m")
	t.Setenv("STEWARD_TELEMETRY_METRICS_ENABLED", "false")
	t.Setenv("STEWARD_TELEMETRY_TRACING_SAMPLE_RATIO", "0.25")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9999" {
		t.Errorf("expected env listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Jobs.Workers != 7 {
		t.Errorf("expected 7 workers, got %d", cfg.Jobs.Workers)
	}
	if cfg.Gate.ChallengeTTL != 5*time.Minute {
		t.Errorf("expected 5m challenge ttl, got %v", cfg.Gate.ChallengeTTL)
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		t.Error("expected metrics disabled by env")
	}
	if cfg.Telemetry.Tracing.SampleRatio != 0.25 {
		t.Errorf("expected sample ratio 0.25, got %v", cfg.Telemetry.Tracing.SampleRatio)
	}
}

func TestLoadConfigWithEnvOverrides_BadValue(t *testing.T) {
	t.Setenv("STEWARD_JOBS_WORKERS", "many")
	t.Setenv("STEWARD_STORAGE_GOVERNANCE_BACKEND", "memory")

	_, err := LoadConfigWithEnvOverrides("")
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Errors[0].Field != "STEWARD_JOBS_WORKERS" {
		t.Errorf("expected error on STEWARD_JOBS_WORKERS, got %v", verr.Errors)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("expected default listen address, got %q", cfg.Server.ListenAddress)
	}
}
