package cli

import (
	"errors"
	"fmt"
	"testing"

	"maturity-hq/steward/pkg/config"
	"maturity-hq/steward/pkg/governance"
)

func TestCommandError(t *testing.T) {
	inner := errors.New("boom")
	err := NewCommandError("sweep", inner)

	if err.Error() != "command sweep failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected CommandError to unwrap to the inner error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"generic", errors.New("db down"), ExitFailure},
		{"integrity", fmt.Errorf("verify: %w", ErrIntegrity), ExitIntegrity},
		{"config validation", config.ValidationError{Errors: []config.FieldError{{Field: "jobs.workers", Message: "bad"}}}, ExitUsage},
		{"request validation", NewCommandError("jobs", &governance.ValidationError{Field: "job_id", Message: "required"}), ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
