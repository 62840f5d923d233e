package handler

import (
	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler serves invoice, receipt and catalog lookups
type InvoiceHandler struct {
	BaseHandler
	queries *appfee.InvoiceQueryService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(queries *appfee.InvoiceQueryService) *InvoiceHandler {
	return &InvoiceHandler{queries: queries}
}

// GetInvoice returns one invoice with its breakups
// @ID          getInvoice
// @Summary     Get invoice by ID
// @Tags        invoices
// @Produce     json
// @Param       id path string true "Invoice ID" format(uuid)
// @Success     200 {object} APIResponse[InvoiceResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	view, err := h.queries.GetInvoice(c.Request.Context(), opCtx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, newInvoiceResponse(*view))
}

// ListInvoices returns a filtered page of invoices
// @ID          listInvoices
// @Summary     List invoices
// @Tags        invoices
// @Produce     json
// @Param       academic_year_id query string false "Academic year ID" format(uuid)
// @Param       student_id query string false "Student ID" format(uuid)
// @Param       class_id query string false "Class ID" format(uuid)
// @Param       status query string false "Status as of today" Enums(PENDING, PARTIAL, PAID, OVERDUE)
// @Param       invoice_number query string false "Invoice number"
// @Param       settled query bool false "Settled flag"
// @Param       due_before query string false "Due on or before (YYYY-MM-DD)"
// @Param       page query int false "Page number" minimum(1)
// @Param       page_size query int false "Page size" minimum(1) maximum(100)
// @Success     200 {object} APIResponse[[]InvoiceResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}

	var query InvoiceListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}
	filter, err := query.toFilter()
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.queries.ListInvoices(c.Request.Context(), opCtx, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]InvoiceResponse, 0, len(page.Items))
	for _, v := range page.Items {
		items = append(items, newInvoiceResponse(v))
	}
	h.SuccessPage(c, items, dto.NewPageMeta(*page))
}

// ListReceipts returns the receipts recorded against an invoice
// @ID          listInvoiceReceipts
// @Summary     List receipts of an invoice
// @Tags        receipts
// @Produce     json
// @Param       id path string true "Invoice ID" format(uuid)
// @Success     200 {object} APIResponse[[]ReceiptResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /invoices/{id}/receipts [get]
func (h *InvoiceHandler) ListReceipts(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	receipts, err := h.queries.ListReceipts(c.Request.Context(), opCtx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]ReceiptResponse, 0, len(receipts))
	for _, r := range receipts {
		items = append(items, newReceiptResponse(r))
	}
	h.Success(c, items)
}

// GetReceipt looks a receipt up by its number
// @ID          getReceipt
// @Summary     Get receipt by number
// @Tags        receipts
// @Produce     json
// @Param       number path string true "Receipt number"
// @Success     200 {object} APIResponse[ReceiptResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /receipts/{number} [get]
func (h *InvoiceHandler) GetReceipt(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}
	number := c.Param("number")
	if number == "" || len(number) > 50 {
		h.BadRequest(c, "Invalid receipt number")
		return
	}

	receipt, err := h.queries.GetReceipt(c.Request.Context(), opCtx, number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, newReceiptResponse(*receipt))
}

// ListFeeHeads returns the school's fee heads
// @ID          listFeeHeads
// @Summary     List fee heads
// @Tags        catalog
// @Produce     json
// @Success     200 {object} APIResponse[[]FeeHeadResponse]
// @Failure     401 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /fee-heads [get]
func (h *InvoiceHandler) ListFeeHeads(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}

	heads, err := h.queries.ListFeeHeads(c.Request.Context(), opCtx)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]FeeHeadResponse, 0, len(heads))
	for _, head := range heads {
		items = append(items, FeeHeadResponse{
			ID:           head.ID.String(),
			Name:         head.Name,
			TaxRate:      head.TaxRate.StringFixed(2),
			TaxInclusive: head.TaxInclusive,
		})
	}
	h.Success(c, items)
}

// ListFeeStructures returns a year's fee structures, optionally for one class
// @ID          listFeeStructures
// @Summary     List fee structures
// @Tags        catalog
// @Produce     json
// @Param       academic_year_id query string true "Academic year ID" format(uuid)
// @Param       class_id query string false "Class ID" format(uuid)
// @Success     200 {object} APIResponse[[]FeeStructureResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /fee-structures [get]
func (h *InvoiceHandler) ListFeeStructures(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}

	var query FeeStructureQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.ValidationError(c, err)
		return
	}
	yearID, err := optionalUUID(query.AcademicYearID)
	if err != nil || yearID == nil {
		h.BadRequest(c, "Invalid academic_year_id")
		return
	}
	classID, err := optionalUUID(query.ClassID)
	if err != nil {
		h.BadRequest(c, "Invalid class_id")
		return
	}

	structures, err := h.queries.ListFeeStructures(c.Request.Context(), opCtx, *yearID, classID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]FeeStructureResponse, 0, len(structures))
	for _, s := range structures {
		items = append(items, FeeStructureResponse{
			ID:             s.ID.String(),
			AcademicYearID: s.AcademicYearID.String(),
			ClassID:        s.ClassID.String(),
			HeadID:         s.HeadID.String(),
			Amount:         dto.Money(s.Amount),
		})
	}
	h.Success(c, items)
}
