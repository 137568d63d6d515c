package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. All packages use these constants instead of
// hardcoded strings so that callers can branch on failure class.
const (
	// Validation errors are detected before any network call and are
	// never retried.
	ErrCodeValidationInvalidCount   ErrorCode = "validation_invalid_count"
	ErrCodeValidationInvalidPeriod  ErrorCode = "validation_invalid_period"
	ErrCodeValidationInvalidPolygon ErrorCode = "validation_invalid_polygon"
	ErrCodeValidationMissingForce   ErrorCode = "validation_missing_force"

	// Upstream errors cover network failures, non-success HTTP statuses,
	// and unparseable responses from the data API.
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Record-shape errors raised while flattening.
	ErrCodeMalformedRecord ErrorCode = "malformed_record"

	// Internal fallback.
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// IsValidation reports whether the code describes a pre-flight input error.
func (c ErrorCode) IsValidation() bool {
	switch c {
	case ErrCodeValidationInvalidCount,
		ErrCodeValidationInvalidPeriod,
		ErrCodeValidationInvalidPolygon,
		ErrCodeValidationMissingForce:
		return true
	}
	return false
}

// AppError is the standard application error type. All domain errors are
// expressed as AppError to enable consistent formatting, failure-class
// branching, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for domain
// errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf extracts the ErrorCode from an error chain. Returns
// ErrCodeInternalUnexpected when the chain contains no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
