package handler

import (
	"fmt"
	"net/http"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// SettlementHandler serves year-end reporting and settlement
type SettlementHandler struct {
	BaseHandler
	settlements *appfee.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(settlements *appfee.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlements: settlements}
}

// GetSummary returns the collection summary of a year
// @ID          getSettlementSummary
// @Summary     Get settlement summary
// @Tags        settlements
// @Produce     json
// @Param       year_id path string true "Academic year ID" format(uuid)
// @Success     200 {object} APIResponse[SettlementSummaryResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /settlements/{year_id}/summary [get]
func (h *SettlementHandler) GetSummary(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}
	yearID, ok := h.pathUUID(c, "year_id")
	if !ok {
		return
	}

	summary, err := h.settlements.GetSettlementSummary(c.Request.Context(), opCtx, yearID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, newSettlementSummaryResponse(summary))
}

// SettleYear marks every fully paid invoice of the year as settled
// @ID          settleYear
// @Summary     Settle an academic year
// @Tags        settlements
// @Produce     json
// @Param       year_id path string true "Academic year ID" format(uuid)
// @Success     200 {object} APIResponse[SettleResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     409 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /settlements/{year_id}/settle [post]
func (h *SettlementHandler) SettleYear(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}
	yearID, ok := h.pathUUID(c, "year_id")
	if !ok {
		return
	}

	result, err := h.settlements.SettleYear(c.Request.Context(), opCtx, yearID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, SettleResponse{
		AcademicYearID: result.AcademicYearID.String(),
		SettledCount:   result.SettledCount,
		SettledDate:    dto.Date(result.SettledDate),
	})
}

// RefreshOverdue flips past-due unpaid invoices of the year to OVERDUE
// @ID          refreshOverdue
// @Summary     Refresh overdue invoices
// @Tags        settlements
// @Produce     json
// @Param       year_id path string true "Academic year ID" format(uuid)
// @Success     200 {object} APIResponse[RefreshOverdueResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /settlements/{year_id}/refresh-overdue [post]
func (h *SettlementHandler) RefreshOverdue(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}
	yearID, ok := h.pathUUID(c, "year_id")
	if !ok {
		return
	}

	changed, err := h.settlements.RefreshOverdue(c.Request.Context(), opCtx, yearID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RefreshOverdueResponse{AcademicYearID: yearID.String(), Refreshed: changed})
}

// ExportSummary downloads the settlement workbook of a year
// @ID          exportSettlementSummary
// @Summary     Download the settlement workbook
// @Tags        settlements
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param       year_id path string true "Academic year ID" format(uuid)
// @Success     200 {file} binary
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Security    BearerAuth
// @Router      /settlements/{year_id}/export [get]
func (h *SettlementHandler) ExportSummary(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}
	yearID, ok := h.pathUUID(c, "year_id")
	if !ok {
		return
	}

	body, contentType, err := h.settlements.ExportSummary(c.Request.Context(), opCtx, yearID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	filename := fmt.Sprintf("settlement-%s%s", yearID, h.settlements.ExportFileExtension())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, body)
}

// ArchiveSummary stores the settlement workbook in object storage
// @ID          archiveSettlementSummary
// @Summary     Archive the settlement workbook
// @Tags        settlements
// @Produce     json
// @Param       year_id path string true "Academic year ID" format(uuid)
// @Success     201 {object} APIResponse[ArchiveResponse]
// @Failure     400 {object} dto.Response
// @Failure     401 {object} dto.Response
// @Failure     404 {object} dto.Response
// @Failure     500 {object} dto.Response
// @Failure     503 {object} dto.Response
// @Security    BearerAuth
// @Router      /settlements/{year_id}/archive [post]
func (h *SettlementHandler) ArchiveSummary(c *gin.Context) {
	opCtx, ok := h.operationContext(c)
	if !ok {
		return
	}
	yearID, ok := h.pathUUID(c, "year_id")
	if !ok {
		return
	}

	key, err := h.settlements.ArchiveSummary(c.Request.Context(), opCtx, yearID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ArchiveResponse{AcademicYearID: yearID.String(), ObjectKey: key})
}
