package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that carries a stable code and an HTTP status.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeStorageError       = "STORAGE_ERROR"
	CodePermissionRequired = "PERMISSION_REQUIRED"
	CodeReminderNotFound   = "REMINDER_NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
)

// PermissionDirective tells the user how to unblock exact-time scheduling.
const PermissionDirective = "To ensure reminders are delivered on time, this app needs permission to schedule exact alarms. Please grant this permission in the app settings and try again."

// Sentinels usable with errors.Is.
var (
	ErrValidation = &AppError{
		Code:       CodeValidationError,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
	}

	ErrStorage = &AppError{
		Code:       CodeStorageError,
		Message:    "Storage failure",
		StatusCode: http.StatusInternalServerError,
	}

	ErrPermissionRequired = &AppError{
		Code:       CodePermissionRequired,
		Message:    PermissionDirective,
		StatusCode: http.StatusForbidden,
	}

	ErrReminderNotFound = &AppError{
		Code:       CodeReminderNotFound,
		Message:    "Reminder not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInternal = &AppError{
		Code:       CodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// Validation creates a validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:       CodeValidationError,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// BadRequest creates an error for malformed input that never reached validation.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       CodeBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Storage wraps a durable storage failure.
func Storage(err error, message string) *AppError {
	return &AppError{
		Code:       CodeStorageError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// PermissionRequired signals that the exact-alarm capability has not been granted.
func PermissionRequired() *AppError {
	return &AppError{
		Code:       CodePermissionRequired,
		Message:    PermissionDirective,
		StatusCode: http.StatusForbidden,
	}
}

// Get extracts the AppError from err, or nil.
func Get(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
