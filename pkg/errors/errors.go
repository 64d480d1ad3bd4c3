package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Session resolution
	ErrCodeNoToken      ErrorCode = "NO_TOKEN"
	ErrCodeTokenInvalid ErrorCode = "TOKEN_INVALID"
	ErrCodeUserNotFound ErrorCode = "USER_NOT_FOUND"

	// Login paths
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken         ErrorCode = "EMAIL_TAKEN"
	ErrCodeResetTokenInvalid  ErrorCode = "RESET_TOKEN_INVALID"
	ErrCodeOtpNotFound        ErrorCode = "OTP_NOT_FOUND"
	ErrCodeOtpExpired         ErrorCode = "OTP_EXPIRED"
	ErrCodeOtpInvalid         ErrorCode = "OTP_INVALID"

	// Operator side
	ErrCodeConfiguration  ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeDispatchFailed ErrorCode = "DISPATCH_FAILED"
)

// Error represents a structured error with code, message, and an optional cause
type Error struct {
	Code    ErrorCode
	Message string // safe to show to the client
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status for this error's code
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches code and message to err. Returns nil for a nil err.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns ErrCodeInternal if the error is not a structured Error.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// PublicMessage returns the client facing message of a structured error, or
// fallback for anything else so internal detail never leaks.
func PublicMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	// OTP failures are reported as bad requests so the client retries the flow.
	case ErrCodeInvalidInput, ErrCodeOtpNotFound, ErrCodeOtpExpired, ErrCodeOtpInvalid,
		ErrCodeResetTokenInvalid:
		return http.StatusBadRequest

	case ErrCodeNoToken, ErrCodeTokenInvalid, ErrCodeUserNotFound, ErrCodeInvalidCredentials:
		return http.StatusUnauthorized

	case ErrCodeForbidden:
		return http.StatusForbidden

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeEmailTaken:
		return http.StatusConflict

	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	case ErrCodeInternal, ErrCodeConfiguration, ErrCodeDispatchFailed:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// InvalidInput creates an "invalid input" error
func InvalidInput(message string) *Error {
	return New(ErrCodeInvalidInput, message)
}

// Internal wraps an unexpected failure behind a generic message.
func Internal(err error) *Error {
	return Wrap(err, ErrCodeInternal, "Internal server error")
}

// RateLimitExceeded creates a "rate limit exceeded" error
func RateLimitExceeded() *Error {
	return New(ErrCodeRateLimitExceeded, "Too many requests, please try again later")
}
