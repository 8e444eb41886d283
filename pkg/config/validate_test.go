package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"maturity-hq/steward/pkg/governance"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:      "listen address without port",
			mutate:    func(c *Config) { c.Server.ListenAddress = "localhost" },
			wantField: "server.listen_address",
		},
		{
			name:      "unknown governance backend",
			mutate:    func(c *Config) { c.Storage.Governance.Backend = "postgres" },
			wantField: "storage.governance.backend",
		},
		{
			name: "sqlite governance needs path",
			mutate: func(c *Config) {
				c.Storage.Governance.Backend = "sqlite"
				c.Storage.Governance.SQLite.Path = ""
			},
			wantField: "storage.governance.sqlite.path",
		},
		{
			name:      "zero workers",
			mutate:    func(c *Config) { c.Jobs.Workers = 0 },
			wantField: "jobs.workers",
		},
		{
			name:      "max backoff below base",
			mutate:    func(c *Config) { c.Jobs.MaxBackoff = time.Second },
			wantField: "jobs.max_backoff",
		},
		{
			name:      "unknown job type timeout",
			mutate:    func(c *Config) { c.Jobs.Timeouts = map[string]time.Duration{"reindex": time.Minute} },
			wantField: "jobs.timeouts.reindex",
		},
		{
			name:      "unknown gate backend",
			mutate:    func(c *Config) { c.Gate.Backend = "memcached" },
			wantField: "gate.backend",
		},
		{
			name:      "short token",
			mutate:    func(c *Config) { c.Gate.TokenLength = 4 },
			wantField: "gate.token_length",
		},
		{
			name:      "invalid cron schedule",
			mutate:    func(c *Config) { c.Retention.Schedule = "every day" },
			wantField: "retention.schedule",
		},
		{
			name:      "schedule off",
			mutate:    func(c *Config) { c.Retention.Schedule = ScheduleOff },
			wantField: "",
		},
		{
			name:      "watch without policy file",
			mutate:    func(c *Config) { c.Retention.Watch = true },
			wantField: "retention.watch",
		},
		{
			name: "enabling primary business data",
			mutate: func(c *Config) {
				enabled := true
				c.Retention.Policies = []RetentionPolicyConfig{{Category: governance.CategoryAssessments, TTLDays: 30, Enabled: &enabled}}
			},
			wantField: "retention.policies[0].enabled",
		},
		{
			name: "listing primary business data without enabled",
			mutate: func(c *Config) {
				c.Retention.Policies = []RetentionPolicyConfig{{Category: governance.CategoryAssessments}}
			},
			wantField: "",
		},
		{
			name: "duplicate policy category",
			mutate: func(c *Config) {
				c.Retention.Policies = []RetentionPolicyConfig{
					{Category: governance.CategoryTempData, TTLDays: 1},
					{Category: governance.CategoryTempData, TTLDays: 2},
				}
			},
			wantField: "retention.policies[1].category",
		},
		{
			name:      "s3 sink without bucket",
			mutate:    func(c *Config) { c.Export.Sink = "s3"; c.Export.S3.Region = "eu-west-1" },
			wantField: "export.s3.bucket",
		},
		{
			name: "s3 half credentials",
			mutate: func(c *Config) {
				c.Export.Sink = "s3"
				c.Export.S3.Bucket = "exports"
				c.Export.S3.Region = "eu-west-1"
				c.Export.S3.AccessKeyID = "AKIA"
			},
			wantField: "export.s3.access_key_id",
		},
		{
			name: "duplicate historical key id",
			mutate: func(c *Config) {
				c.Audit.Historical = []AuditKeyConfig{{ID: c.Audit.Key.ID, Secret: "old"}}
			},
			wantField: "audit.historical[0].id",
		},
		{
			name:      "auth without keys",
			mutate:    func(c *Config) { c.Auth.Enabled = true },
			wantField: "auth.api_keys",
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			wantField: "telemetry.logging.level",
		},
		{
			name:      "unordered buckets",
			mutate:    func(c *Config) { c.Telemetry.Metrics.DurationBuckets = []float64{1, 0.5} },
			wantField: "telemetry.metrics.duration_buckets",
		},
		{
			name:      "sample ratio out of range",
			mutate:    func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			wantField: "telemetry.tracing.sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTestConfig().Build()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.wantField, verr.Errors)
			}
		})
	}
}

func TestValidationError_Format(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if single.Error() != "configuration validation failed: a: bad" {
		t.Errorf("unexpected single error format: %q", single.Error())
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	msg := multi.Error()
	if !strings.Contains(msg, "2 errors") || !strings.Contains(msg, "  - b: worse") {
		t.Errorf("unexpected multi error format: %q", msg)
	}
}
