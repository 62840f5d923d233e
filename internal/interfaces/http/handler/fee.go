package handler

import (
	"net/http"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/feesettle/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// FeeHandler handles fee generation and payment endpoints
type FeeHandler struct {
	BaseHandler
	generation *appfee.GenerationService
	payments   *appfee.PaymentService
}

// NewFeeHandler creates a new FeeHandler
func NewFeeHandler(generation *appfee.GenerationService, payments *appfee.PaymentService) *FeeHandler {
	return &FeeHandler{
		generation: generation,
		payments:   payments,
	}
}

// GenerateAnnualFees creates invoices for every eligible student of a year
// @ID          generateAnnualFees
// @Summary     Generate annual fee invoices
// @Description Creates one invoice per eligible student of the academic year. Students with an invoice for the year are skipped.
// @Tags        fees
// @Accept      json
// @Produce     json
// @Param       request body GenerateFeesRequest true "Generation request"
// @Success     201 {object} APIResponse[GenerationResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     409 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /fees/generate [post]
func (h *FeeHandler) GenerateAnnualFees(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}

	var req GenerateFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.generation.GenerateAnnualFees(c.Request.Context(), opCtx, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, newGenerationResponse(result))
}

// ProcessPayment records a payment against an invoice and allocates it
// across fee heads. A repeated Idempotency-Key replays the first receipt
// with 200 instead of 201.
// @ID          processPayment
// @Summary     Record a payment
// @Description Allocates the payment across the invoice's fee heads and issues a receipt
// @Tags        payments
// @Accept      json
// @Produce     json
// @Param       id path string true "Invoice ID" format(uuid)
// @Param       Idempotency-Key header string false "Replays the first receipt for a repeated key"
// @Param       request body ProcessPaymentRequest true "Payment request"
// @Success     201 {object} APIResponse[PaymentResponse]
// @Success     200 {object} APIResponse[PaymentResponse] "Replay of an earlier request with the same Idempotency-Key"
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     409 {object} dto.Response
// @Failure     422 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /invoices/{id}/payments [post]
func (h *FeeHandler) ProcessPayment(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}
	invoiceID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	key := c.GetHeader(middleware.IdempotencyKeyHeader)
	if len(key) > 128 {
		h.BadRequest(c, "Idempotency-Key must be at most 128 characters")
		return
	}
	cmd, err := req.toCommand(invoiceID, key)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.payments.ProcessPayment(c.Request.Context(), opCtx, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if result.Replayed {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(newPaymentResponse(result)))
		return
	}
	h.Created(c, newPaymentResponse(result))
}
