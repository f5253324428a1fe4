package shared

import "fmt"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same error code, so that
// errors built with NewDomainError match the sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrValidation          = NewDomainError("VALIDATION_ERROR", "Validation failed")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientStock   = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrNegativeStock       = NewDomainError("NEGATIVE_STOCK", "Operation would drive stock negative")
	ErrPartialPosting      = NewDomainError("PARTIAL_POSTING", "Document was only partially posted")
)

// NewNotFoundError reports a missing resource of the given kind
func NewNotFoundError(resource string, id any) *DomainError {
	return NewDomainError(ErrNotFound.Code, fmt.Sprintf("%s %v not found", resource, id))
}

// NewValidationError reports malformed input
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(ErrValidation.Code, fmt.Sprintf(format, args...))
}

// NewInvalidStateError reports an operation that the current state forbids
func NewInvalidStateError(format string, args ...any) *DomainError {
	return NewDomainError(ErrInvalidState.Code, fmt.Sprintf(format, args...))
}
