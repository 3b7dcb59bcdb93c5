// Package errors provides a lightweight structured error type (PoolPilotError)
// for category-based classification and retry semantics in the pipeline and CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a PoolPilot error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// External system integration errors
	CategoryScheduler ErrorCategory = "scheduler"
	CategoryPool      ErrorCategory = "pool"
	CategoryAnalysis  ErrorCategory = "analysis"
	CategoryNotify    ErrorCategory = "notify"

	// Run and storage errors
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryStorage    ErrorCategory = "storage"

	// Runtime and infrastructure errors
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// PoolPilotError is a structured error with category, retryability, and context
type PoolPilotError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for PoolPilotError
type ContextFields map[string]any

// Error implements the error interface
func (e *PoolPilotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *PoolPilotError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *PoolPilotError) WithContext(key string, value any) *PoolPilotError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new PoolPilotError
func New(category ErrorCategory, severity ErrorSeverity, message string) *PoolPilotError {
	return &PoolPilotError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new PoolPilotError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *PoolPilotError {
	return &PoolPilotError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// Retryable creates a new retryable PoolPilotError
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *PoolPilotError {
	return &PoolPilotError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// WrapRetryable creates a new retryable PoolPilotError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *PoolPilotError {
	return &PoolPilotError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if pe, ok := err.(*PoolPilotError); ok {
		return pe.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if pe, ok := err.(*PoolPilotError); ok {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a PoolPilotError
func GetCategory(err error) ErrorCategory {
	if pe, ok := err.(*PoolPilotError); ok {
		return pe.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error
func ValidationError(message string) *PoolPilotError {
	return &PoolPilotError{
		Category:  CategoryValidation,
		Severity:  SeverityWarning,
		Message:   message,
		Retryable: false,
	}
}

// DaemonError creates a new daemon error (service unavailable)
func DaemonError(message string) *PoolPilotError {
	return &PoolPilotError{
		Category:  CategoryDaemon,
		Severity:  SeverityError,
		Message:   message,
		Retryable: false,
	}
}

// WrapError wraps an existing error with a new PoolPilotError
func WrapError(err error, category ErrorCategory, message string) *PoolPilotError {
	return &PoolPilotError{
		Category:  category,
		Severity:  SeverityError,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}
