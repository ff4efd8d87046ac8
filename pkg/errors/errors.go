package errors

import (
	"fmt"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure outside of a single resource,
// such as a missing plan or a cancelled run.
type ExecutionError struct {
	StepID string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(stepID string, err error) error {
	return &ExecutionError{StepID: stepID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepID != "" {
		return fmt.Sprintf("execution error on step %s: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PluginError indicates issues within back end registration.
type PluginError struct {
	Plugin  string
	Message string
	Err     error
}

// NewPluginError constructs a PluginError for the given resource kind.
func NewPluginError(plugin string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &PluginError{Plugin: plugin, Message: message, Err: err}
}

func (e *PluginError) Error() string {
	if e == nil {
		return ""
	}
	if e.Plugin != "" {
		return fmt.Sprintf("plugin error [%s]: %s", e.Plugin, e.Message)
	}
	return fmt.Sprintf("plugin error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *PluginError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// GuardEvaluationError reports that a guard could not determine the current
// system state. It is always fatal for the step.
type GuardEvaluationError struct {
	Identity string
	Kind     string
	Err      error
}

// NewGuardEvaluationError constructs a GuardEvaluationError.
func NewGuardEvaluationError(identity, kind string, err error) error {
	return &GuardEvaluationError{Identity: identity, Kind: kind, Err: err}
}

func (e *GuardEvaluationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("guard evaluation failed for %s %s: %v", e.Kind, e.Identity, e.Err)
}

// Unwrap exposes the underlying error.
func (e *GuardEvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ActionError reports that applying a resource failed. Later steps are not run.
type ActionError struct {
	Identity string
	Kind     string
	Err      error
}

// NewActionError constructs an ActionError.
func NewActionError(identity, kind string, err error) error {
	return &ActionError{Identity: identity, Kind: kind, Err: err}
}

func (e *ActionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("action failed for %s %s: %v", e.Kind, e.Identity, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ActionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ResolverError reports an inventory query failure or malformed inventory data.
type ResolverError struct {
	Index string
	Query string
	Err   error
}

// NewResolverError constructs a ResolverError.
func NewResolverError(index, query string, err error) error {
	return &ResolverError{Index: index, Query: query, Err: err}
}

func (e *ResolverError) Error() string {
	if e == nil {
		return ""
	}
	if e.Query != "" {
		return fmt.Sprintf("inventory error: %s %q: %v", e.Index, e.Query, e.Err)
	}
	if e.Index != "" {
		return fmt.Sprintf("inventory error: %s: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("inventory error: %v", e.Err)
}

// Unwrap exposes the underlying error.
func (e *ResolverError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
