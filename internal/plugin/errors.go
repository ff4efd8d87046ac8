package plugin

import (
	"errors"
	"fmt"

	"github.com/datashades/converge/internal/resource"
)

// ErrPluginNotFound is returned when no back end handles a kind.
type ErrPluginNotFound struct {
	Kind resource.Kind
}

func (e ErrPluginNotFound) Error() string {
	return fmt.Sprintf("no plugin registered for resource kind '%s'\nHint: register the back end before running the plan", e.Kind)
}

// PluginError is the base interface for all back end errors.
type PluginError interface {
	error
	StepID() string
	Unwrap() error
}

// ValidationError reports a descriptor the back end cannot act on.
type ValidationError struct {
	ID  string
	Err error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(stepID string, err error) *ValidationError {
	return &ValidationError{ID: stepID, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return "validation error in step " + e.ID
	}
	return "validation error in step " + e.ID + ": " + e.Err.Error()
}

// StepID returns the identity of the failing resource.
func (e *ValidationError) StepID() string { return e.ID }

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches any ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ExecutionError reports a failed command, write or network operation.
type ExecutionError struct {
	ID  string
	Err error
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(stepID string, err error) *ExecutionError {
	return &ExecutionError{ID: stepID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return "execution error in step " + e.ID
	}
	return "execution error in step " + e.ID + ": " + e.Err.Error()
}

// StepID returns the identity of the failing resource.
func (e *ExecutionError) StepID() string { return e.ID }

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// Is matches any ExecutionError.
func (e *ExecutionError) Is(target error) bool {
	_, ok := target.(*ExecutionError)
	return ok
}

// StateError reports that the current state of a resource could not be read.
type StateError struct {
	ID  string
	Err error
}

// NewStateError creates a new StateError.
func NewStateError(stepID string, err error) *StateError {
	return &StateError{ID: stepID, Err: err}
}

func (e *StateError) Error() string {
	if e.Err == nil {
		return "state error in step " + e.ID
	}
	return "state error in step " + e.ID + ": " + e.Err.Error()
}

// StepID returns the identity of the failing resource.
func (e *StateError) StepID() string { return e.ID }

// Unwrap returns the underlying error.
func (e *StateError) Unwrap() error { return e.Err }

// Is matches any StateError.
func (e *StateError) Is(target error) bool {
	_, ok := target.(*StateError)
	return ok
}

// AsPluginError extracts a PluginError from err's chain.
func AsPluginError(err error) (PluginError, bool) {
	var pluginErr PluginError
	if errors.As(err, &pluginErr) {
		return pluginErr, true
	}
	return nil, false
}
