package cli

import (
	"errors"
	"fmt"

	"maturity-hq/steward/pkg/config"
	"maturity-hq/steward/pkg/governance"
)

// Process exit codes used by the steward command.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitUsage     = 2
	ExitIntegrity = 3
)

// ErrIntegrity is returned by commands that found tampered audit events.
var ErrIntegrity = errors.New("audit integrity check failed")

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, ErrIntegrity) {
		return ExitIntegrity
	}
	var cfgErr config.ValidationError
	var valErr *governance.ValidationError
	if errors.As(err, &cfgErr) || errors.As(err, &valErr) {
		return ExitUsage
	}
	return ExitFailure
}
