// Package errors provides structured error handling for hostenum operations.
// It defines error codes, error types for the tool, target, configuration and
// report layers, and helpers for classifying errors by code.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodePermission    ErrorCode = "PERMISSION"
	CodeNotFound      ErrorCode = "NOT_FOUND"

	// External tool errors.
	CodeToolUnavailable ErrorCode = "TOOL_UNAVAILABLE"
	CodeToolFailed      ErrorCode = "TOOL_FAILED"

	// Target errors.
	CodeTargetInvalid  ErrorCode = "TARGET_INVALID"
	CodeDNSResolution  ErrorCode = "DNS_RESOLUTION"
	CodeTargetTooLarge ErrorCode = "TARGET_TOO_LARGE"

	// Report and file system errors.
	CodeReportFailed    ErrorCode = "REPORT_FAILED"
	CodeFilePermission  ErrorCode = "FILE_PERMISSION"
	CodeDirectoryCreate ErrorCode = "DIRECTORY_CREATE"
)

// coded is implemented by every error type in this package.
type coded interface {
	error
	ErrorCode() ErrorCode
}

// ToolError represents a failed invocation of an external tool.
type ToolError struct {
	Code    ErrorCode
	Message string
	Tool    string
	Target  string
	Command string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s: %s (target: %s)", e.Code, e.Tool, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Tool, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *ToolError) ErrorCode() ErrorCode { return e.Code }

// WithContext adds context information to the error.
func (e *ToolError) WithContext(key string, value interface{}) *ToolError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewToolError creates a new tool error with the specified code and message.
func NewToolError(code ErrorCode, tool, message string) *ToolError {
	return &ToolError{
		Code:    code,
		Message: message,
		Tool:    tool,
		Context: make(map[string]interface{}),
	}
}

// WrapToolError wraps an existing error as a tool error.
func WrapToolError(code ErrorCode, tool, message string, err error) *ToolError {
	return &ToolError{
		Code:    code,
		Message: message,
		Tool:    tool,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// TargetError represents an invalid or unresolvable target specification.
type TargetError struct {
	Code    ErrorCode
	Message string
	Spec    string
	Cause   error
}

// Error implements the error interface.
func (e *TargetError) Error() string {
	if e.Spec != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Spec)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *TargetError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *TargetError) ErrorCode() ErrorCode { return e.Code }

// NewTargetError creates a new target error.
func NewTargetError(code ErrorCode, message, spec string) *TargetError {
	return &TargetError{Code: code, Message: message, Spec: spec}
}

// WrapTargetError wraps an existing error as a target error.
func WrapTargetError(code ErrorCode, message, spec string, err error) *TargetError {
	return &TargetError{Code: code, Message: message, Spec: spec, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *ConfigError) ErrorCode() ErrorCode { return e.Code }

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// ReportError represents a failure to render or write a report.
type ReportError struct {
	Code    ErrorCode
	Message string
	Path    string
	Format  string
	Cause   error
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ReportError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *ReportError) ErrorCode() ErrorCode { return e.Code }

// WrapReportError wraps an existing error as a report error.
func WrapReportError(code ErrorCode, message, path string, err error) *ReportError {
	return &ReportError{Code: code, Message: message, Path: path, Cause: err}
}

// Utility functions for common error operations

// GetCode extracts the error code from the first coded error in the chain.
func GetCode(err error) ErrorCode {
	var c coded
	if stderrors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsNotFound reports whether an error indicates a missing resource or tool.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound) || IsCode(err, CodeToolUnavailable)
}

// IsRetryable determines if an error indicates a retryable condition.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeToolFailed, CodeDNSResolution:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrToolUnavailable creates an error for a tool missing from PATH.
func ErrToolUnavailable(tool string, err error) *ToolError {
	return WrapToolError(CodeToolUnavailable, tool, "tool not found", err)
}

// ErrToolTimeout creates an error for a tool that exceeded its time budget.
func ErrToolTimeout(tool, target string) *ToolError {
	e := NewToolError(CodeTimeout, tool, "command timed out")
	e.Target = target
	return e
}

// ErrInvalidTarget creates an error for invalid target specifications.
func ErrInvalidTarget(spec string) *TargetError {
	return NewTargetError(CodeTargetInvalid, "Invalid target specification", spec)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}
