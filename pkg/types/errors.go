package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeReportNotReady ErrorType = "report_not_ready"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeRateLimited    ErrorType = "rate_limited"
	ErrorTypeInternal       ErrorType = "internal"
)

// PortalError represents a structured error surfaced by the portal
type PortalError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *PortalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *PortalError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *PortalError {
	return &PortalError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(code, message string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeAuthorization,
		Code:    code,
		Message: message,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(code, message string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeAuthentication,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewReportNotReadyError is returned when a document is requested for a
// request that has no report yet. redirect names the list view to go back to.
func NewReportNotReadyError(redirect string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeReportNotReady,
		Code:    ErrCodeReportNotReady,
		Message: "Report has not been completed yet.",
		Details: map[string]interface{}{"redirect": redirect},
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(code, message string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
	}
}

// NewRateLimitError is returned when a client exceeds its attempt budget
func NewRateLimitError(message string) *PortalError {
	return &PortalError{
		Type:    ErrorTypeRateLimited,
		Code:    ErrCodeTooManyAttempts,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *PortalError {
	return &PortalError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// AsPortalError unwraps err into a *PortalError when one is in the chain
func AsPortalError(err error) (*PortalError, bool) {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsType reports whether err carries a PortalError of the given type
func IsType(err error, t ErrorType) bool {
	pe, ok := AsPortalError(err)
	return ok && pe.Type == t
}

// StatusCode maps an error onto the HTTP status the API layers answer with
func StatusCode(err error) int {
	pe, ok := AsPortalError(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch pe.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeAuthorization:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeReportNotReady, ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicError returns what a client may see of err. Internal failures and
// errors outside the taxonomy collapse to a generic message.
func PublicError(err error) *PortalError {
	pe, ok := AsPortalError(err)
	if !ok || pe.Type == ErrorTypeInternal {
		return &PortalError{
			Type:    ErrorTypeInternal,
			Code:    ErrCodeInternalError,
			Message: "An internal error occurred",
		}
	}
	return pe
}

// Common error codes
const (
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeRequestNotPending    = "REQUEST_NOT_PENDING"
	ErrCodeReportNotReady       = "REPORT_NOT_READY"
	ErrCodeImageRejected        = "IMAGE_REJECTED"
	ErrCodeUsernameTaken        = "USERNAME_TAKEN"
	ErrCodeTooManyAttempts      = "TOO_MANY_ATTEMPTS"
)

// InvalidCredentialsMessage is the single message returned for every failed
// login, whatever the reason.
const InvalidCredentialsMessage = "Invalid credentials. Please try again."
