package governance

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a job, event or business record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotClaimable is returned when a compare-and-swap claim or update
	// loses because the job is no longer in the expected state.
	ErrNotClaimable = errors.New("job not claimable")

	// ErrConfirmationRejected marks a purge whose confirmation token did not
	// match an issued, unexpired challenge.
	ErrConfirmationRejected = errors.New("confirmation rejected")

	// ErrExecutionTimeout is recorded by the reaper for jobs that exceeded
	// their maximum execution time on every attempt.
	ErrExecutionTimeout = errors.New("exceeded maximum execution time")
)

// ValidationError is a malformed or unauthorized request, rejected before a
// job record exists.
type ValidationError struct {
	Field   string // Offending field, empty for whole-request errors
	Message string // Human readable reason
	Cause   error  // Optional underlying error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// TransientStoreError is a failure talking to a collaborating store that
// may succeed on retry.
type TransientStoreError struct {
	Store     string // Store name ("business", "blob", "audit", ...)
	Operation string // Operation that failed
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error [store=%s, operation=%s]: %v", e.Store, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransientStoreError) Unwrap() error {
	return e.Cause
}

// NewTransientStoreError creates a new TransientStoreError.
func NewTransientStoreError(store, operation string, cause error) *TransientStoreError {
	return &TransientStoreError{Store: store, Operation: operation, Cause: cause}
}

// IntegrityError reports an audit event whose tag does not verify.
type IntegrityError struct {
	EventID string
	Reason  string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error [event=%s]: %s", e.EventID, e.Reason)
}

// NewIntegrityError creates a new IntegrityError.
func NewIntegrityError(eventID, reason string) *IntegrityError {
	return &IntegrityError{EventID: eventID, Reason: reason}
}

// InvariantViolation is a logic error: an operation that must never happen
// in the current state. It is never retried.
type InvariantViolation struct {
	Rule   string // Short rule name, e.g. "hard_delete_before_grace"
	Detail string
}

// Error implements the error interface.
func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation [%s]: %s", e.Rule, e.Detail)
}

// NewInvariantViolation creates a new InvariantViolation.
func NewInvariantViolation(rule, format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// StorageError represents an error from a governance storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("create", "claim", "append", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// ConflictError is returned when an equivalent job is already in flight.
type ConflictError struct {
	JobID  string // The in-flight job, empty when the conflict is not a duplicate
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("conflict: %s", e.Reason)
	}
	return fmt.Sprintf("conflict [job=%s]: %s", e.JobID, e.Reason)
}

// Unwrap returns the underlying cause error.
func (e *ConflictError) Unwrap() error {
	return e.Cause
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	var te *TransientStoreError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsInvariant reports whether err is an InvariantViolation.
func IsInvariant(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// IsIntegrity reports whether err is an IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// PublicMessage returns the sanitized message stored on a failed job. It
// never includes the text of err.
func PublicMessage(t JobType, err error) string {
	op := string(t)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExecutionTimeout):
		return ErrExecutionTimeout.Error()
	case errors.Is(err, ErrNotFound):
		return op + " failed: referenced data not found"
	case IsValidation(err):
		return op + " failed: invalid job parameters"
	case IsTransient(err):
		return op + " failed: a dependent data store was unavailable"
	case IsInvariant(err):
		return op + " failed: operation not permitted in the current state"
	case IsIntegrity(err):
		return op + " failed: audit integrity check failed"
	}
	return op + " failed: internal error"
}
