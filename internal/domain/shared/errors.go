package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every layer. The HTTP layer maps them to status codes.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidRate            = "INVALID_RATE"
	CodeOverpayment            = "OVERPAYMENT"
	CodeAllocationMismatch     = "ALLOCATION_MISMATCH"
	CodeOverAllocation         = "OVER_ALLOCATION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
)

// DomainError represents a domain-level error.
// A DomainError always means the operation did not change any state;
// Retryable marks the ones where repeating the whole call may succeed.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	cause     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches any DomainError carrying the same code, so callers can write
// errors.Is(err, shared.ErrNotFound) regardless of the message.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Retryable: code == CodeConcurrentModification,
	}
}

// NewDomainErrorf creates a new domain error with a formatted message
func NewDomainErrorf(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error that wraps cause
func (e *DomainError) WithCause(cause error) *DomainError {
	cp := *e
	cp.cause = cause
	return &cp
}

// Sentinels for errors.Is matching
var (
	ErrValidation             = NewDomainError(CodeValidation, "Invalid input provided")
	ErrInvalidRate            = NewDomainError(CodeInvalidRate, "Tax rate must be between 0 and 100")
	ErrOverpayment            = NewDomainError(CodeOverpayment, "Payment exceeds outstanding balance")
	ErrAllocationMismatch     = NewDomainError(CodeAllocationMismatch, "Allocation total does not match payment amount")
	ErrOverAllocation         = NewDomainError(CodeOverAllocation, "Allocation exceeds line balance")
	ErrConcurrentModification = NewDomainError(CodeConcurrentModification, "Resource was modified by another process")
	ErrNotFound               = NewDomainError(CodeNotFound, "Resource not found")
	ErrUnauthorized           = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
)

// AsDomainError extracts a *DomainError from err's chain
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsRetryable reports whether err is a domain error the caller may retry
func IsRetryable(err error) bool {
	de, ok := AsDomainError(err)
	return ok && de.Retryable
}
