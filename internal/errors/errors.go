// Package errors provides structured error types for the safefeat system.
// All errors include a category, code, and message so callers can
// distinguish schema problems from parse problems from spec problems
// without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure kind.
type ErrorCategory string

const (
	// ErrCategorySchema covers required columns missing from the spine or
	// an event table, including metric dimensions that name no column.
	ErrCategorySchema ErrorCategory = "SCHEMA"

	// ErrCategoryParse covers timestamp, duration, and numeric values
	// that cannot be interpreted.
	ErrCategoryParse ErrorCategory = "PARSE"

	// ErrCategorySpec covers malformed feature specifications.
	ErrCategorySpec ErrorCategory = "SPEC"

	// ErrCategoryInternal covers unexpected conditions.
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeMissingColumn  = "MISSING_COLUMN"
	CodeLengthMismatch = "LENGTH_MISMATCH"

	// Parse codes
	CodeBadTimestamp = "BAD_TIMESTAMP"
	CodeBadDuration  = "BAD_DURATION"
	CodeBadNumeric   = "BAD_NUMERIC"

	// Spec codes
	CodeUnknownBlock     = "UNKNOWN_BLOCK"
	CodeUnknownTable     = "UNKNOWN_TABLE"
	CodeBadAggregate     = "BAD_AGGREGATE"
	CodeBadWildcard      = "BAD_WILDCARD"
	CodeBadRecencyFilter = "BAD_RECENCY_FILTER"
	CodeNegativeDuration = "NEGATIVE_DURATION"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// SafefeatError is the structured error type used throughout the system.
// A build call either completes or fails with one of these; there is no
// retryable flag because every failure is a deterministic caller
// configuration or data error.
type SafefeatError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *SafefeatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SafefeatError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *SafefeatError) Is(target error) bool {
	var t *SafefeatError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new SafefeatError.
func New(category ErrorCategory, code, message string) *SafefeatError {
	return &SafefeatError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new SafefeatError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SafefeatError {
	return &SafefeatError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *SafefeatError) WithDetails(details map[string]interface{}) *SafefeatError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a SafefeatError.
func GetCategory(err error) ErrorCategory {
	var se *SafefeatError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a SafefeatError.
func GetCode(err error) string {
	var se *SafefeatError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewSchemaError(code, message string) *SafefeatError {
	return New(ErrCategorySchema, code, message)
}

func NewParseError(code, message string, cause error) *SafefeatError {
	return Wrap(ErrCategoryParse, code, message, cause)
}

func NewSpecError(code, message string) *SafefeatError {
	return New(ErrCategorySpec, code, message)
}

func NewInternalError(message string, cause error) *SafefeatError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
