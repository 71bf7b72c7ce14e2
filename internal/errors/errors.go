package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error code
type ErrorCode string

const (
	// Remote source errors
	CodeFetch        ErrorCode = "FETCH_ERROR"
	CodeFetchTimeout ErrorCode = "FETCH_TIMEOUT"
	CodeFetchStatus  ErrorCode = "FETCH_BAD_STATUS"

	// Parse errors
	CodeParse         ErrorCode = "PARSE_ERROR"
	CodeMalformedData ErrorCode = "MALFORMED_DATA"

	// Key/value store errors
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	CodeStoreRateLimited ErrorCode = "STORE_RATE_LIMITED"

	// Logical lookups
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Validation errors
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// Config errors
	CodeConfig ErrorCode = "CONFIG_ERROR"

	// Internal errors
	CodeInternal ErrorCode = "INTERNAL_ERROR"
	CodeUnknown  ErrorCode = "UNKNOWN_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// FetchError reports an unreachable remote source or a transport failure.
func FetchError(url string, err error) *AppError {
	return Wrap(err, CodeFetch, "remote source unreachable").
		WithContext("url", url)
}

// FetchStatusError reports a non-2xx answer from a remote source.
func FetchStatusError(url string, status int) *AppError {
	return New(CodeFetchStatus, fmt.Sprintf("unexpected HTTP status %d", status)).
		WithContext("url", url).
		WithContext("status", status)
}

// ParseError creates a parse error
func ParseError(message string, err error) *AppError {
	return Wrap(err, CodeParse, message)
}

// StoreUnavailable reports a failing key/value operation.
func StoreUnavailable(op, key string, err error) *AppError {
	return Wrap(err, CodeStoreUnavailable, fmt.Sprintf("kv %s failed", op)).
		WithContext("key", key)
}

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// ConfigError creates a configuration error
func ConfigError(message string, err error) *AppError {
	if err != nil {
		return Wrap(err, CodeConfig, message)
	}
	return New(CodeConfig, message)
}

// NotFoundError creates a not found error
func NotFoundError(resource, identifier string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, identifier))
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeFetch, CodeFetchTimeout, CodeStoreRateLimited:
			return true
		case CodeFetchStatus:
			status, _ := appErr.Context["status"].(int)
			return status >= 500 || status == 429
		}
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsFetchError reports whether err came from a remote source.
func IsFetchError(err error) bool {
	switch GetErrorCode(err) {
	case CodeFetch, CodeFetchTimeout, CodeFetchStatus:
		return true
	}
	return false
}

// IsNotFound reports whether err is a logical lookup miss.
func IsNotFound(err error) bool {
	return GetErrorCode(err) == CodeNotFound
}

// IsStoreUnavailable reports whether err came from the key/value store.
func IsStoreUnavailable(err error) bool {
	return GetErrorCode(err) == CodeStoreUnavailable
}
