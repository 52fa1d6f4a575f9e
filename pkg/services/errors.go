// Package services provides the business operations behind the HTTP API.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidStatus          = errors.New("invalid workflow status")
	ErrEmptyOrganizationID    = errors.New("organization ID cannot be empty")
	ErrInvalidNodeConfig      = errors.New("invalid node configuration")
	ErrInvalidConnectionData  = errors.New("invalid connection data")
	ErrInvalidTriggerBinding  = errors.New("invalid trigger binding")
	ErrInvalidScheduleBinding = errors.New("invalid schedule configuration")
	ErrInvalidBulkAction      = errors.New("invalid bulk action")

	// Business logic conflicts (409 Conflict).
	ErrWorkflowArchived         = errors.New("archived workflows are read only")
	ErrWorkflowNotTriggerable   = errors.New("workflow is not active")
	ErrExecutionNotControllable = errors.New("execution state does not allow this action")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyOrganizationID) ||
		errors.Is(err, ErrInvalidNodeConfig) ||
		errors.Is(err, ErrInvalidConnectionData) ||
		errors.Is(err, ErrInvalidTriggerBinding) ||
		errors.Is(err, ErrInvalidScheduleBinding) ||
		errors.Is(err, ErrInvalidBulkAction)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowArchived) ||
		errors.Is(err, ErrWorkflowNotTriggerable) ||
		errors.Is(err, ErrExecutionNotControllable)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
