package utils

import (
	"fmt"
	"net/http"
)

// ServiceError represents a service-level error with context
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Details    string `json:"details,omitempty"`
	Cause      error  `json:"-"` // Original error, not exposed in JSON
}

func (e ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(code, message string) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewServiceErrorWithCause creates a service error that wraps another error
func NewServiceErrorWithCause(code, message string, cause error) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

// GetServiceError extracts a ServiceError from an error
func GetServiceError(err error) (ServiceError, bool) {
	if serviceErr, ok := err.(ServiceError); ok {
		return serviceErr, true
	}
	return ServiceError{}, false
}

// HasErrorCode reports whether err carries the given service error code.
func HasErrorCode(err error, code string) bool {
	serviceErr, ok := GetServiceError(err)
	return ok && serviceErr.Code == code
}

// Error code constants
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeAuthentication     = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization      = "AUTHORIZATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeDatabase           = "DATABASE_ERROR"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeSchedulingFailed   = "SCHEDULING_FAILED"
	ErrCodeCancelFailed       = "CANCEL_FAILED"
	ErrCodeInvalidRecord      = "INVALID_RECORD"
	ErrCodePushService        = "PUSH_SERVICE_ERROR"
)

// Delivery-backend error taxonomy.

// NewBackendUnavailableError reports that a backend's preconditions are unmet,
// e.g. the native facility requested without authorization. Not retried.
func NewBackendUnavailableError(backend, reason string) error {
	return ServiceError{
		Code:       ErrCodeBackendUnavailable,
		Message:    fmt.Sprintf("%s backend unavailable", backend),
		Details:    reason,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// NewSchedulingFailedError reports a backend-level rejection of a schedule call.
func NewSchedulingFailedError(backend string, cause error) error {
	return ServiceError{
		Code:       ErrCodeSchedulingFailed,
		Message:    fmt.Sprintf("%s backend rejected schedule", backend),
		Cause:      cause,
		StatusCode: http.StatusBadGateway,
	}
}

// NewCancelError reports a cancellation failure. Cancellation is best-effort;
// callers log this and continue.
func NewCancelError(backend, handle string, cause error) error {
	return ServiceError{
		Code:       ErrCodeCancelFailed,
		Message:    fmt.Sprintf("%s backend failed to cancel handle %s", backend, handle),
		Cause:      cause,
		StatusCode: http.StatusBadGateway,
	}
}

// NewInvalidRecordError reports a corrupt alarm record, e.g. handles from both
// backends populated at once. Aborts the whole operation that encounters it.
func NewInvalidRecordError(details string) error {
	return ServiceError{
		Code:       ErrCodeInvalidRecord,
		Message:    "alarm record violates delivery invariant",
		Details:    details,
		StatusCode: http.StatusInternalServerError,
	}
}

// Generic HTTP-facing constructors.

func NewUnauthorizedError(message string) error {
	return ServiceError{
		Code:       ErrCodeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string) error {
	return ServiceError{
		Code:       ErrCodeAuthorization,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewNotFoundError(resource string) error {
	return ServiceError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func NewBadRequestError(message string) error {
	return ServiceError{
		Code:       ErrCodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewConflictError(message string) error {
	return ServiceError{
		Code:       ErrCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string) error {
	return ServiceError{
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewDatabaseError(operation string, cause error) error {
	return ServiceError{
		Code:       ErrCodeDatabase,
		Message:    fmt.Sprintf("Database operation failed: %s", operation),
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewAlarmNotFoundError() error {
	return NewNotFoundError("Alarm")
}

func NewDeviceNotFoundError() error {
	return NewNotFoundError("Device")
}

func NewInvalidCredentialsError() error {
	return NewUnauthorizedError("Invalid credentials")
}

func NewPushServiceError(message string, cause error) error {
	return ServiceError{
		Code:       ErrCodePushService,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusServiceUnavailable,
	}
}
