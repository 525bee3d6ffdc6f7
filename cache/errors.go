package cache

import (
	"errors"
	"fmt"
)

// ErrorType classifies cache errors.
type ErrorType int

const (
	// ErrorTypeValidation indicates malformed or out-of-range caller input,
	// detected before any I/O.
	ErrorTypeValidation ErrorType = iota
	// ErrorTypeConfiguration indicates a structural conflict in configuration
	// resolution, such as an alias collision or an unknown template name.
	ErrorTypeConfiguration
	// ErrorTypeInfrastructure indicates an I/O or connectivity failure that
	// could not be gracefully degraded.
	ErrorTypeInfrastructure
	// ErrorTypeConnection indicates a Redis connection error.
	ErrorTypeConnection
	// ErrorTypeNotFound indicates a cache miss or missing key.
	ErrorTypeNotFound
	// ErrorTypeSerialization indicates a marshaling or unmarshaling error.
	ErrorTypeSerialization
	// ErrorTypeTimeout indicates a timeout during a cache operation.
	ErrorTypeTimeout
)

// String returns the string representation of ErrorType.
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeConfiguration:
		return "CONFIGURATION"
	case ErrorTypeInfrastructure:
		return "INFRASTRUCTURE"
	case ErrorTypeConnection:
		return "CONNECTION"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeSerialization:
		return "SERIALIZATION"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// CacheError is the error type returned by this package. Field carries the
// offending configuration field for validation errors; Context carries
// structured diagnostic data for infrastructure errors (registry key,
// factory identifier, original error text).
type CacheError struct {
	Type    ErrorType
	Field   string
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("cache error [%s] field '%s': %s", e.Type.String(), e.Field, e.Message)
	}
	return fmt.Sprintf("cache error [%s]: %s", e.Type.String(), e.Message)
}

// Unwrap returns the underlying cause error.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is matches errors by type so callers can use errors.Is with a sentinel.
func (e *CacheError) Is(target error) bool {
	if t, ok := target.(*CacheError); ok {
		return e.Type == t.Type
	}
	return false
}

// NewValidationError creates a validation error naming the offending field.
func NewValidationError(field, message string) *CacheError {
	return &CacheError{Type: ErrorTypeValidation, Field: field, Message: message}
}

// NewConfigurationError creates a configuration resolution error.
func NewConfigurationError(message string, cause error) *CacheError {
	return &CacheError{Type: ErrorTypeConfiguration, Message: message, Cause: cause}
}

// NewInfrastructureError creates an infrastructure error with structured
// context.
func NewInfrastructureError(message string, cause error, context map[string]interface{}) *CacheError {
	return &CacheError{Type: ErrorTypeInfrastructure, Message: message, Cause: cause, Context: context}
}

// NewConnectionError creates a connection-specific cache error.
func NewConnectionError(message string, cause error) *CacheError {
	return &CacheError{Type: ErrorTypeConnection, Message: message, Cause: cause}
}

// NewNotFoundError creates a not-found error for the given key.
func NewNotFoundError(key string) *CacheError {
	return &CacheError{Type: ErrorTypeNotFound, Field: key, Message: "key not found in cache"}
}

// NewSerializationError creates a serialization error for the given key.
func NewSerializationError(key, message string, cause error) *CacheError {
	return &CacheError{Type: ErrorTypeSerialization, Field: key, Message: message, Cause: cause}
}

// NewTimeoutError creates a timeout error for the given key.
func NewTimeoutError(key, message string, cause error) *CacheError {
	return &CacheError{Type: ErrorTypeTimeout, Field: key, Message: message, Cause: cause}
}

// IsValidationError checks whether the error is a validation error.
func IsValidationError(err error) bool {
	return hasErrorType(err, ErrorTypeValidation)
}

// IsConfigurationError checks whether the error is a configuration error.
func IsConfigurationError(err error) bool {
	return hasErrorType(err, ErrorTypeConfiguration)
}

// IsInfrastructureError checks whether the error is an infrastructure error.
func IsInfrastructureError(err error) bool {
	return hasErrorType(err, ErrorTypeInfrastructure)
}

// IsConnectionError checks whether the error is a connection error.
func IsConnectionError(err error) bool {
	return hasErrorType(err, ErrorTypeConnection)
}

// IsNotFoundError checks whether the error is a not-found error.
func IsNotFoundError(err error) bool {
	return hasErrorType(err, ErrorTypeNotFound)
}

func hasErrorType(err error, t ErrorType) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Type == t
	}
	return false
}
