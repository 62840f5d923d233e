package dto

import (
	"time"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Response is the envelope of every API answer. Exactly one of Data and
// Error is set; Meta accompanies paged listings.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo describes a refused request. Retryable tells the client that
// the same request may succeed later, e.g. after a lock timeout.
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Retryable bool               `json:"retryable"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail names one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta carries the paging state of a listing
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// NewPageMeta reads the paging state off a domain page
func NewPageMeta[T any](p shared.Page[T]) *Meta {
	return &Meta{
		Total:      p.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext(),
	}
}

// NewSuccessResponse wraps data
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewListResponse wraps one page of items
func NewListResponse(items any, meta *Meta) Response {
	return Response{Success: true, Data: items, Meta: meta}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message, requestID string, retryable bool) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
			Retryable: retryable,
		},
	}
}

// NewValidationErrorResponse creates a 400 body listing the rejected fields
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) Response {
	resp := NewErrorResponse(ErrCodeValidation, message, requestID, false)
	resp.Error.Details = details
	return resp
}

// ListRequest represents common list/pagination request parameters
type ListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// PageRequest converts the query into a domain page request
func (r ListRequest) PageRequest() shared.PageRequest {
	return shared.PageRequest{Page: r.Page, PageSize: r.PageSize, OrderBy: r.OrderBy, OrderDir: r.OrderDir}
}

// Money renders an amount with exactly two decimals
func Money(d decimal.Decimal) string {
	return valueobject.FormatAmount(d)
}

// Date renders a calendar date as YYYY-MM-DD
func Date(t time.Time) string {
	return t.Format(time.DateOnly)
}

// DatePtr renders an optional date
func DatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := Date(*t)
	return &s
}
