package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed error below matches exactly one of these with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidState        = errors.New("invalid state")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrExternalUnavailable = errors.New("external service unavailable")
)

// ValidationError reports malformed or out-of-range input. It is user-correctable
// and never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalidf builds a ValidationError for field.
func Invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports an illegal lifecycle transition, such as closing a closed trade.
type InvalidStateError struct {
	Entity string
	ID     int64
	State  string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: cannot %s %s %d in state %s", ErrInvalidState, e.Action, e.Entity, e.ID, e.State)
}

// Is matches ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// NotFoundError reports an unknown identifier.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d %s", e.Entity, e.ID, ErrNotFound)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports an operation blocked by derived dependents.
type ConflictError struct {
	Entity string
	ID     int64
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s %d: %s", ErrConflict, e.Entity, e.ID, e.Reason)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ExternalUnavailableError reports a failed or timed-out collaborator call.
type ExternalUnavailableError struct {
	Service string
	Err     error
}

func (e *ExternalUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Service, ErrExternalUnavailable)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, ErrExternalUnavailable, e.Err)
}

// Is matches ErrExternalUnavailable.
func (e *ExternalUnavailableError) Is(target error) bool { return target == ErrExternalUnavailable }

// Unwrap exposes the underlying cause.
func (e *ExternalUnavailableError) Unwrap() error { return e.Err }
