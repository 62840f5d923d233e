package handler

import "github.com/feesettle/backend/internal/interfaces/http/dto"

// APIResponse is dto.Response with a typed data field, for API docs and
// clients that decode one payload type
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}
