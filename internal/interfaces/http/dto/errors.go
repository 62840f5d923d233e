package dto

import (
	"net/http"

	"github.com/feesettle/backend/internal/domain/shared"
)

// Domain error codes, as raised by the fee core
const (
	ErrCodeValidation             = shared.CodeValidation
	ErrCodeInvalidRate            = shared.CodeInvalidRate
	ErrCodeOverpayment            = shared.CodeOverpayment
	ErrCodeAllocationMismatch     = shared.CodeAllocationMismatch
	ErrCodeOverAllocation         = shared.CodeOverAllocation
	ErrCodeConcurrentModification = shared.CodeConcurrentModification
	ErrCodeNotFound               = shared.CodeNotFound
	ErrCodeUnauthorized           = shared.CodeUnauthorized
)

// Transport error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeTokenExpired is used when the bearer token has expired
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	// ErrCodeForbidden is used when the client may not reach the resource
	ErrCodeForbidden = "FORBIDDEN"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeServiceUnavailable is used when a dependency is down
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// Input errors -> 400 Bad Request
	ErrCodeValidation:  http.StatusBadRequest,
	ErrCodeInvalidRate: http.StatusBadRequest,
	ErrCodeBadRequest:  http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:               http.StatusNotFound,
	ErrCodeConcurrentModification: http.StatusConflict,

	// Payment rule errors -> 422 Unprocessable Entity
	ErrCodeOverpayment:        http.StatusUnprocessableEntity,
	ErrCodeAllocationMismatch: http.StatusUnprocessableEntity,
	ErrCodeOverAllocation:     http.StatusUnprocessableEntity,

	ErrCodeRequestTooLarge:    http.StatusRequestEntityTooLarge,
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewDomainErrorResponse converts err into a status code and envelope.
// Errors outside the domain taxonomy are reported as INTERNAL_ERROR without
// leaking their message.
func NewDomainErrorResponse(err error, requestID string) (int, Response) {
	if de, ok := shared.AsDomainError(err); ok {
		return GetHTTPStatus(de.Code), NewErrorResponse(de.Code, de.Message, requestID, de.Retryable)
	}
	return http.StatusInternalServerError,
		NewErrorResponse(ErrCodeInternal, "An unexpected error occurred", requestID, false)
}
