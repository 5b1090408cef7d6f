package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a provisioning error for propagation policy.
type ErrorClass string

const (
	// ErrorClassConfig indicates a configuration error (unsupported OS,
	// dependency cycle, missing required secret). Fatal before any
	// mutation is attempted.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassProbe indicates a probe could not run. Never fatal: the
	// capability is treated as Missing and re-attempted.
	ErrorClassProbe ErrorClass = "probe"

	// ErrorClassAction indicates a corrective action failed. Fatal by
	// default: the remaining plan is aborted because later capabilities
	// may assume this one succeeded.
	ErrorClassAction ErrorClass = "action"

	// ErrorClassInternal indicates a bug or invariant violation.
	ErrorClassInternal ErrorClass = "internal"
)

// ProvisionError is a classified error with capability and action context.
type ProvisionError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Capability is the capability ID involved, if any.
	Capability string `json:"capability,omitempty"`

	// Action is the action kind being executed when the error occurred.
	Action string `json:"action,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ProvisionError) Error() string {
	switch {
	case e.Capability != "" && e.Action != "":
		return fmt.Sprintf("[%s] %s (capability=%s, action=%s): %s",
			e.Class, e.Message, e.Capability, e.Action, e.unwrapMessage())
	case e.Capability != "":
		return fmt.Sprintf("[%s] %s (capability=%s): %s",
			e.Class, e.Message, e.Capability, e.unwrapMessage())
	default:
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ProvisionError) Unwrap() error {
	return e.Err
}

func (e *ProvisionError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality for errors.Is.
func (e *ProvisionError) Is(target error) bool {
	t, ok := target.(*ProvisionError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, err error) *ProvisionError {
	return &ProvisionError{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewProbeError creates a probe error.
func NewProbeError(message string, err error) *ProvisionError {
	return &ProvisionError{Class: ErrorClassProbe, Message: message, Err: err}
}

// NewActionError creates an action failure.
func NewActionError(message string, err error) *ProvisionError {
	return &ProvisionError{Class: ErrorClassAction, Message: message, Err: err}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, err error) *ProvisionError {
	return &ProvisionError{Class: ErrorClassInternal, Message: message, Err: err}
}

// WithCapability adds capability context.
func (e *ProvisionError) WithCapability(id string) *ProvisionError {
	e.Capability = id
	return e
}

// WithAction adds action context.
func (e *ProvisionError) WithAction(kind string) *ProvisionError {
	e.Action = kind
	return e
}

// WithCode adds an error code.
func (e *ProvisionError) WithCode(code string) *ProvisionError {
	e.Code = code
	return e
}

// IsConfigError reports whether err is classified as a configuration error.
func IsConfigError(err error) bool {
	var e *ProvisionError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConfig
	}
	return false
}

// IsActionError reports whether err is classified as an action failure.
func IsActionError(err error) bool {
	var e *ProvisionError
	if errors.As(err, &e) {
		return e.Class == ErrorClassAction
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeCycle         = "DEPENDENCY_CYCLE"
	ErrCodeUnsupportedOS = "UNSUPPORTED_OS"
	ErrCodeMissingSecret = "MISSING_SECRET"
	ErrCodeActionFailed  = "ACTION_FAILED"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeInternal      = "INTERNAL_ERROR"
)
