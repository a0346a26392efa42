// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrInputValidation = errors.New("input validation failed")
)

// SourceError represents a transport failure talking to an upstream
// market data feed. Price resolution recovers from it by falling
// through to the next tier; dividend reconciliation propagates it.
type SourceError struct {
	Source   string
	Endpoint string
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source error [%s] %s: %v", e.Source, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("source error [%s] %s", e.Source, e.Endpoint)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a new SourceError.
func NewSourceError(source, endpoint string, err error) *SourceError {
	return &SourceError{
		Source:   source,
		Endpoint: endpoint,
		Err:      err,
	}
}

// IsSourceError reports whether any error in err's chain is a
// SourceError.
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
