// Package domain defines the entities shared across the deployment engine:
// plans, records, credentials, provider profiles and the step failure
// taxonomy. This is part of the Functional Core - no I/O happens here.
package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Failure Categories
// =============================================================================

// ErrorCategory classifies a step failure and drives the retry policy.
type ErrorCategory string

const (
	// CategoryAuthFailure means the credentials were rejected. Never retried:
	// repeating the call wastes quota and risks an account lockout.
	CategoryAuthFailure ErrorCategory = "auth_failure"

	// CategoryConnectivity is a transient transport failure (refused
	// connection, timeout, rate limit exhaustion). The only retryable category.
	CategoryConnectivity ErrorCategory = "connectivity_error"

	// CategoryRemoteWrite means the target rejected a filesystem or artifact
	// mutation (disk full, read-only target, path outside the deploy root).
	CategoryRemoteWrite ErrorCategory = "remote_write_error"

	// CategoryDatabaseConfig means database provisioning or configuration
	// failed on the target.
	CategoryDatabaseConfig ErrorCategory = "database_config_error"

	// CategoryPermissionDenied means the authenticated identity lacks rights
	// for the attempted operation.
	CategoryPermissionDenied ErrorCategory = "permission_denied"

	// CategoryUnknown is used when an adapter returns an unclassified error.
	CategoryUnknown ErrorCategory = "unknown"
)

// Retryable reports whether failures in this category may be retried.
func (c ErrorCategory) Retryable() bool {
	return c == CategoryConnectivity
}

// =============================================================================
// Step Errors
// =============================================================================

// StepError is a classified failure reported by a provider adapter. The
// orchestrator turns every StepError into a StepResult; it never escapes a
// deploy call directly.
type StepError struct {
	Category ErrorCategory
	Op       string // Adapter operation that failed (e.g. "Upload")
	Message  string
	Err      error
}

func (e *StepError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Category, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Category)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError creates a classified step error.
func NewStepError(category ErrorCategory, op, message string, err error) *StepError {
	return &StepError{
		Category: category,
		Op:       op,
		Message:  message,
		Err:      err,
	}
}

// CategoryOf extracts the failure category from an error chain, returning
// CategoryUnknown for errors no adapter classified.
func CategoryOf(err error) ErrorCategory {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Category
	}
	return CategoryUnknown
}
