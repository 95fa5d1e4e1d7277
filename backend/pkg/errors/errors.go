package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeNotFound represents a missing person, contact or job
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeValidation represents malformed caller input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeUpstream represents an unreachable or slow collaborator
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypePartial represents a batch that completed with some failed records
	ErrorTypePartial ErrorType = "partial"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// base lets errors.As find the embedded BaseError of any typed error.
func (e *BaseError) base() *BaseError {
	return e
}

type baseCarrier interface {
	base() *BaseError
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// ErrNotFound is returned when a referenced entity does not exist
type ErrNotFound struct {
	*BaseError
	Resource string
	ID       string
}

func NewNotFound(resource, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", resource, id), nil),
		Resource:  resource,
		ID:        id,
	}
}

// ErrValidation is returned for malformed input. It is never retried.
type ErrValidation struct {
	*BaseError
	Field  string
	Reason string
}

func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrUpstreamUnavailable is returned when the graph store, cache or text
// generation service cannot be reached in time
type ErrUpstreamUnavailable struct {
	*BaseError
	Service   string
	Operation string
	Retryable bool
}

func NewUpstreamUnavailable(service, operation string, err error) *ErrUpstreamUnavailable {
	return &ErrUpstreamUnavailable{
		BaseError: NewBaseError(ErrorTypeUpstream, fmt.Sprintf("%s unavailable during %s", service, operation), err),
		Service:   service,
		Operation: operation,
		Retryable: true,
	}
}

// ErrPartialFailure describes a batch where some records failed. The batch
// itself is reported as successful.
type ErrPartialFailure struct {
	*BaseError
	Operation string
	Failed    int
	Total     int
}

func NewPartialFailure(operation string, failed, total int) *ErrPartialFailure {
	return &ErrPartialFailure{
		BaseError: NewBaseError(ErrorTypePartial, fmt.Sprintf("%s: %d of %d records failed", operation, failed, total), nil),
		Operation: operation,
		Failed:    failed,
		Total:     total,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if c, ok := err.(baseCarrier); ok && c.base().Type == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	var upstream *ErrUpstreamUnavailable
	if stderrors.As(err, &upstream) {
		return upstream.Retryable
	}
	return false
}

// HTTPStatus maps an error onto the status code the API layer responds with
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsErrorType(err, ErrorTypeUpstream), IsErrorType(err, ErrorTypeContext):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
