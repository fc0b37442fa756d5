package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound            = errors.New("resource not found")
	ErrBadRequest          = errors.New("bad request")
	ErrConflict            = errors.New("resource conflict")
	ErrInternal            = errors.New("internal server error")
	ErrValidation          = errors.New("validation error")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrRetryable           = errors.New("retryable storage error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// InsufficientStock reports a consumption that would drive a material negative.
// The ledger is unchanged when this is returned.
func InsufficientStock(materialID, available, requested string) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("insufficient stock for material %s", materialID),
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"material_id": materialID,
			"available":   available,
			"requested":   requested,
		},
	}
}

// DuplicateIdentifier reports an issued code that collided with an existing
// record. It signals an integrity fault, so callers get a generic message.
func DuplicateIdentifier(code string, cause error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %s: %v", ErrDuplicateIdentifier, code, cause),
		Code:       "DUPLICATE_IDENTIFIER",
		Message:    "internal server error",
		StatusCode: http.StatusInternalServerError,
	}
}

// Retryable wraps a transient storage failure. The operation had no effect
// and the caller may retry it as a whole.
func Retryable(cause error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrRetryable, cause),
		Code:       "RETRYABLE",
		Message:    "temporary storage failure, retry the request",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// OutcomeUnknown wraps a timeout or lost connection where the write may or
// may not have been applied. The caller must re-read before retrying.
func OutcomeUnknown(cause error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrRetryable, cause),
		Code:       "OUTCOME_UNKNOWN",
		Message:    "storage did not confirm the operation, check state before retrying",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// IsRetryable reports whether err is a transient storage failure
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
