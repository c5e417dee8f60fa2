// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")

	// Job lifecycle failure kinds.
	ErrPortAllocation     = errors.New("port allocation failure")
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
	ErrCreationRejected   = errors.New("container creation rejected")
	ErrPersistence        = errors.New("persistence failure")
	ErrInvalidReference   = errors.New("invalid reference")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "name")
	Resource string // For not found/conflict (e.g., "job", "container")
	Op       string // Operation that failed (e.g., "docker.containerStop")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so errors.Is
// matches either the classification or the original error (e.g. a deadline).
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  fmt.Sprintf("%s %s: %s", resource, id, reason),
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// RuntimeUnavailable reports that the container runtime could not be reached
// or errored. Timeouts are reported with this kind as well.
func RuntimeUnavailable(op string, cause error) error {
	return &Error{
		Sentinel: ErrRuntimeUnavailable,
		Message:  fmt.Sprintf("%s: runtime unavailable: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// CreationRejected reports that the runtime refused to create or start a container.
func CreationRejected(op string, cause error) error {
	return &Error{
		Sentinel: ErrCreationRejected,
		Message:  fmt.Sprintf("%s: creation rejected: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// ContainerNotFound reports that a referenced container no longer exists.
func ContainerNotFound(op, containerID string, cause error) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("container %s not found", containerID),
		Resource: "container",
		Op:       op,
		Cause:    cause,
	}
}

// Persistence wraps a job store read or write failure.
func Persistence(op string, cause error) error {
	return &Error{
		Sentinel: ErrPersistence,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// InvalidReference reports a caller-supplied reference that cannot be acted on:
// an unknown id (cause is typically a NotFound) or a job with no container.
func InvalidReference(resource, id, reason string, cause error) error {
	return &Error{
		Sentinel: ErrInvalidReference,
		Message:  fmt.Sprintf("%s %s: %s", resource, id, reason),
		Resource: resource,
		Cause:    cause,
	}
}

// PortAllocation reports that the OS could not hand out an ephemeral port.
func PortAllocation(cause error) error {
	return &Error{
		Sentinel: ErrPortAllocation,
		Message:  fmt.Sprintf("port allocation: %v", cause),
		Op:       "portalloc.allocate",
		Cause:    cause,
	}
}
