// Package errors provides a structured error system for jobrate with error codes, categories, and context.
package errors

import (
	stderr "errors"
	"fmt"
	"time"
)

// ErrorCode represents a structured error code for jobrate operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigConflict   ErrorCode = "CONFIG_CONFLICT"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"

	// Acquisition Errors
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	ErrCodeCommandFailed     ErrorCode = "COMMAND_FAILED"
	ErrCodeCommandTimeout    ErrorCode = "COMMAND_TIMEOUT"
	ErrCodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"

	// State Errors
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// Operation Errors
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodePublishFailed     ErrorCode = "PUBLISH_FAILED"

	// Internal Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryAcquisition   ErrorCategory = "acquisition"
	CategoryState         ErrorCategory = "state"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// JobrateError represents a structured error with context and metadata.
type JobrateError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`

	Retryable  bool `json:"retryable"`
	UserFacing bool `json:"user_facing"`
}

// Error implements the error interface.
func (e *JobrateError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, msg)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *JobrateError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *JobrateError) Is(target error) bool {
	if t, ok := target.(*JobrateError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new jobrate error with default values.
func NewError(code ErrorCode, message string) *JobrateError {
	return &JobrateError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Context:    make(map[string]string),
		Retryable:  IsRetryableByDefault(code),
		UserFacing: IsUserFacingByDefault(code),
	}
}

// Newf creates a new jobrate error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *JobrateError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigConflict, ErrCodeConfigValidation,
		ErrCodeConfigLoad, ErrCodeConfigSave:
		return CategoryConfiguration
	case ErrCodeSourceUnavailable, ErrCodeCommandFailed, ErrCodeCommandTimeout,
		ErrCodeCircuitOpen:
		return CategoryAcquisition
	case ErrCodeInvalidState:
		return CategoryState
	case ErrCodeOperationCanceled, ErrCodePublishFailed:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeSourceUnavailable, ErrCodeCommandFailed, ErrCodeCommandTimeout:
		return true
	default:
		return false
	}
}

// IsUserFacingByDefault determines if an error should be shown to users.
func IsUserFacingByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigConflict, ErrCodeConfigValidation,
		ErrCodeConfigLoad, ErrCodeSourceUnavailable, ErrCodeCommandFailed:
		return true
	default:
		return false
	}
}

// CodeOf returns the code of the first JobrateError in err's chain, or
// ErrCodeInternalError when there is none.
func CodeOf(err error) ErrorCode {
	var e *JobrateError
	if stderr.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternalError
}

// WithContext adds contextual information to an error
func (e *JobrateError) WithContext(key, value string) *JobrateError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *JobrateError) WithDetail(key string, value interface{}) *JobrateError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *JobrateError) WithComponent(component string) *JobrateError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *JobrateError) WithOperation(operation string) *JobrateError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *JobrateError) WithCause(cause error) *JobrateError {
	e.Cause = cause
	return e
}

// GetRecommendation returns a user-friendly recommendation for fixing the error
func (e *JobrateError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeConfigConflict: "Two options that exclude each other were given. " +
			"Keep only one of them.",
		ErrCodeInvalidConfig: "Configuration validation failed. " +
			"Check your configuration file syntax and required parameters.",
		ErrCodeConfigValidation: "A configuration value is out of range. " +
			"Run 'jobrate validate' with the same flags to see the effective settings.",
		ErrCodeConfigLoad: "The configuration file could not be read. " +
			"Check the -config path and the YAML syntax.",
		ErrCodeSourceUnavailable: "No job_stats source could be read. " +
			"Check that this host runs an MDS or OSS and that jobstats are enabled (lctl conf_param <fs>.sys.jobid_var).",
		ErrCodeCommandFailed: "The lctl command failed. " +
			"Verify the lctl path and that the collector runs with sufficient privileges.",
		ErrCodeCommandTimeout: "The lctl command took too long to complete. " +
			"Consider increasing source.timeout.",
		ErrCodeCircuitOpen: "Acquisition is paused after repeated failures. " +
			"It resumes automatically once the breaker timeout elapses.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}

	return "Please check the error message for details."
}

// UserFacingMessage returns a simplified message suitable for end users
func (e *JobrateError) UserFacingMessage() string {
	if !e.UserFacing {
		return "An internal error occurred."
	}
	return e.Message
}
