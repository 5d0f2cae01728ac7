// Package errors defines the structured error kinds raised by the scan pipeline.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeStaging indicates the object could not be fetched or written to local staging.
	ErrCodeStaging ErrorCode = "staging"
	// ErrCodeScanExecution indicates the scanner executable could not be started or timed out.
	ErrCodeScanExecution ErrorCode = "scan_execution"
	// ErrCodeNotification indicates the outcome notification could not be published.
	ErrCodeNotification ErrorCode = "notification"
	// ErrCodeRelocation indicates the copy or delete of the object between areas failed.
	ErrCodeRelocation ErrorCode = "relocation"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: fmt.Sprintf(format, args...),
	}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Staging wraps a failure to stage an object locally.
func Staging(err error, area, key string) *AppError {
	return Wrapf(err, ErrCodeStaging, "stage %s/%s", area, key)
}

// ScanExecution wraps a failure to run the scanner.
func ScanExecution(err error, path string) *AppError {
	return Wrapf(err, ErrCodeScanExecution, "run scanner on %s", path)
}

// Notification wraps a failure to publish an outcome.
func Notification(err error, fileName string) *AppError {
	return Wrapf(err, ErrCodeNotification, "publish outcome for %s", fileName)
}

// Relocation wraps a failure to move an object between areas.
func Relocation(err error, op, area, key string) *AppError {
	return Wrapf(err, ErrCodeRelocation, "%s %s/%s", op, area, key)
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsStaging checks if an error is a Staging error.
func IsStaging(err error) bool {
	return isCode(err, ErrCodeStaging)
}

// IsScanExecution checks if an error is a ScanExecution error.
func IsScanExecution(err error) bool {
	return isCode(err, ErrCodeScanExecution)
}

// IsNotification checks if an error is a Notification error.
func IsNotification(err error) bool {
	return isCode(err, ErrCodeNotification)
}

// IsRelocation checks if an error is a Relocation error.
func IsRelocation(err error) bool {
	return isCode(err, ErrCodeRelocation)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// HasCode reports whether any AppError in err's chain carries code. Unlike the
// IsX helpers it looks past an outer AppError to the ones it wraps.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// GetCode returns the outermost ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
