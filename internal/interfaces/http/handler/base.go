package handler

import (
	"errors"
	"net/http"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/logger"
	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/feesettle/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessPage sends one page of a listing
func (h *BaseHandler) SuccessPage(c *gin.Context, items any, meta *dto.Meta) {
	c.JSON(http.StatusOK, dto.NewListResponse(items, meta))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponse(code, message, middleware.GetRequestID(c), false))
}

// BadRequest sends a 400 validation error for a malformed parameter
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// ValidationError sends a 400 validation error response with field details
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// HandleError converts err to the standard envelope. Domain errors keep
// their code and message; anything else is logged and reported as a 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	if _, ok := shared.AsDomainError(err); !ok {
		logger.GetGinLogger(c).Error("Request failed", zap.Error(err))
	}
	_ = c.Error(err)
	status, resp := dto.NewDomainErrorResponse(err, middleware.GetRequestID(c))
	c.JSON(status, resp)
}

// operationContext returns the caller's operation context or answers 401
func (h *BaseHandler) operationContext(c *gin.Context) (appfee.OperationContext, bool) {
	opCtx, ok := middleware.GetOperationContext(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return appfee.OperationContext{}, false
	}
	return opCtx, true
}

// pathUUID parses a UUID path parameter or answers 400
func (h *BaseHandler) pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID parses an optional UUID query value
func optionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, errors.New("invalid UUID")
	}
	return &id, nil
}
