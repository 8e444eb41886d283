package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"maturity-hq/steward/pkg/config"
	"maturity-hq/steward/pkg/governance"
	"maturity-hq/steward/pkg/governance/service"
)

const testAuditKey = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// memoryConfigFile writes a config that keeps everything in memory except
// export artifacts, which go to a temp directory.
func memoryConfigFile(t *testing.T) string {
	t.Helper()
	t.Setenv("STEWARD_SECRET_AUDIT_HMAC_KEY", testAuditKey)
	return writeFile(t, "steward.yaml", fmt.Sprintf(`
storage:
  governance:
    backend: memory
  business:
    backend: memory
export:
  sink: filesystem
  filesystem:
    root: %q
retention:
  schedule: "off"
telemetry:
  logging:
    level: error
`, t.TempDir()))
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg, err := config.LoadConfig(memoryConfigFile(t))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	a, err := newApp(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

func TestNewApp_ExportEndToEnd(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if err := a.business.CreateEngagement(ctx, governance.Engagement{ID: "eng-1", Name: "Acme", ClientName: "Acme"}); err != nil {
		t.Fatal(err)
	}
	sub, err := a.service.RequestExport(ctx, service.Caller{Actor: "alice"}, service.ExportRequest{EngagementID: "eng-1"})
	if err != nil {
		t.Fatalf("RequestExport failed: %v", err)
	}

	processed, err := a.pool.Drain(ctx)
	if err != nil || processed != 1 {
		t.Fatalf("Drain() = %d, %v; want 1 job processed", processed, err)
	}
	job, err := a.service.Job(ctx, sub.JobID, governance.JobTypeExport)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != governance.JobStatusCompleted {
		t.Fatalf("expected completed export, got %s (%s)", job.Status, job.ErrorMessage)
	}

	res, err := a.service.VerifyAudit(ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Checked == 0 {
		t.Errorf("expected a valid, non-empty audit trail, got %+v", res)
	}
}

func TestNewApp_SweepsEveryCategory(t *testing.T) {
	a := newTestApp(t)

	report, err := a.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	for _, c := range report.Categories {
		if c.Error != "" {
			t.Errorf("category %s failed: %s", c.Category, c.Error)
		}
	}
}

func TestApplyRetention(t *testing.T) {
	a := newTestApp(t)

	rc := a.cfg.Retention
	rc.Policies = []config.RetentionPolicyConfig{{Category: governance.CategoryTempData, TTLDays: 3}}
	if err := a.applyRetention(rc); err != nil {
		t.Fatalf("applyRetention failed: %v", err)
	}
	if p, _ := a.policies.Get(governance.CategoryTempData); p.TTL != 72*time.Hour {
		t.Errorf("expected temp_data ttl 72h, got %v", p.TTL)
	}

	rc.PolicyFile = writeFile(t, "policies.yaml", "policies:\n  - category: operational_logs\n    ttl_days: 10\n")
	if err := a.applyRetention(rc); err != nil {
		t.Fatalf("applyRetention with policy file failed: %v", err)
	}
	if p, _ := a.policies.Get(governance.CategoryOperationalLogs); p.TTL != 240*time.Hour {
		t.Errorf("expected operational_logs ttl 240h, got %v", p.TTL)
	}
	if p, _ := a.policies.Get(governance.CategoryTempData); p.TTL != 24*time.Hour {
		t.Errorf("expected policy file to replace config overrides, got temp_data ttl %v", p.TTL)
	}

	rc.PolicyFile = ""
	rc.Policies = []config.RetentionPolicyConfig{{Category: governance.CategoryTempData, TTL: -time.Hour}}
	if err := a.applyRetention(rc); err == nil {
		t.Error("expected invalid override to be rejected")
	}
}

func TestAPIKeys(t *testing.T) {
	a := newTestApp(t)
	if a.apiKeys() != nil {
		t.Fatal("expected no key store with auth disabled")
	}

	disabled := false
	a.cfg.Auth.Enabled = true
	a.cfg.Auth.APIKeys = []config.APIKeyConfig{
		{Key: "k-admin", Actor: "ops", Admin: true},
		{Key: "k-off", Actor: "old", Enabled: &disabled},
	}
	keys := a.apiKeys()
	info, err := keys.Validate("k-admin")
	if err != nil || info.Actor != "ops" || !info.Admin {
		t.Errorf("unexpected admin key validation: %+v, %v", info, err)
	}
	if _, err := keys.Validate("k-off"); err == nil {
		t.Error("expected disabled key to be rejected")
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootFlags.output = "text"
		rootFlags.configFile = ""
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Steward "+Version) || !strings.Contains(out, "Go Version:") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestPoliciesValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "valid",
			content: "policies:\n  - category: operational_logs\n    ttl: 720h\n    enabled: true\n",
		},
		{
			name:    "primary business data",
			content: "policies:\n  - category: assessments\n    ttl: 720h\n    enabled: true\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "policies.yaml", tt.content)
			out, err := runCLI(t, "policies", "validate", path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.Contains(out, "1 policies valid") {
				t.Errorf("unexpected output %q", out)
			}
		})
	}
}

func TestPoliciesListCommand(t *testing.T) {
	path := memoryConfigFile(t)
	out, err := runCLI(t, "policies", "list", "--config", path, "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var policies []governance.RetentionPolicy
	if err := json.Unmarshal([]byte(out), &policies); err != nil {
		t.Fatalf("invalid json output: %v\n%s", err, out)
	}
	found := false
	for _, p := range policies {
		if p.Category == governance.CategoryAssessments && p.Sweepable() {
			t.Error("assessments must never be sweepable")
		}
		if p.Category == governance.CategoryOperationalLogs {
			found = true
		}
	}
	if !found {
		t.Errorf("expected operational_logs policy in %v", policies)
	}
}
