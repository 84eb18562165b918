package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode tags an AppError with the failure kind clients branch on.
type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeDuplicateEmail     ErrorCode = "DUPLICATE_EMAIL"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	ErrCodeEmailNotVerified   ErrorCode = "EMAIL_NOT_VERIFIED"
	ErrCodeInvalidCode        ErrorCode = "INVALID_CODE"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// AppError is the tagged result every service operation returns on failure.
// Business-rule failures are values, never panics; only the HTTP layer turns
// them into status codes.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Status  int
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

// NewNotFound reports an absent resource.
func NewNotFound(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

// NewInvalidInput reports a malformed or rejected request payload.
func NewInvalidInput(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewDuplicateEmail reports a registration against an email already in use.
func NewDuplicateEmail() *AppError {
	return &AppError{
		Code:    ErrCodeDuplicateEmail,
		Message: "Email already registered",
		Status:  http.StatusConflict,
	}
}

// NewInvalidCredentials reports a failed login. The message is deliberately
// identical for unknown emails and wrong passwords so callers cannot probe
// which accounts exist.
func NewInvalidCredentials() *AppError {
	return &AppError{
		Code:    ErrCodeInvalidCredentials,
		Message: "Invalid email or password",
		Status:  http.StatusUnauthorized,
	}
}

// NewRateLimited reports a request rejected by the rate limiter.
func NewRateLimited(message string) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimited,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// NewAccountLocked reports a login against a temporarily locked account.
func NewAccountLocked(remainingMinutes int) *AppError {
	return &AppError{
		Code:    ErrCodeAccountLocked,
		Message: fmt.Sprintf("Account locked due to too many failed attempts. Try again in %d minutes.", remainingMinutes),
		Status:  http.StatusLocked,
	}
}

// NewEmailNotVerified reports a login by a user who has not confirmed their
// email yet.
func NewEmailNotVerified() *AppError {
	return &AppError{
		Code:    ErrCodeEmailNotVerified,
		Message: "Please verify your email address.",
		Status:  http.StatusForbidden,
	}
}

// NewInvalidCode reports a verification attempt with a wrong or stale code.
func NewInvalidCode() *AppError {
	return &AppError{
		Code:    ErrCodeInvalidCode,
		Message: "Invalid verification code",
		Status:  http.StatusBadRequest,
	}
}

// NewUnauthorized reports a missing or rejected credential on a protected
// operation.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// NewInternal reports an infrastructure failure (storage, broker). Persisted
// state that cannot be read back lands here; it is the only kind callers
// should treat as unrecoverable.
func NewInternal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// Wrap attaches an underlying error to a new AppError.
func Wrap(err error, code ErrorCode, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Status:  status,
	}
}
