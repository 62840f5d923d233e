package handler

import (
	"github.com/feesettle/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
)

// FeeHandlers groups the handlers behind the authenticated fee API
type FeeHandlers struct {
	Fees        *FeeHandler
	Invoices    *InvoiceHandler
	Settlements *SettlementHandler
}

// MountFeeRoutes adds the fee API groups to r. Every route runs behind auth,
// which must authenticate the bearer token; the school comes from its claims.
func MountFeeRoutes(r *router.Router, h FeeHandlers, auth gin.HandlerFunc) {
	r.Group("fees", "/fees", auth).
		POST("/generate", h.Fees.GenerateAnnualFees)

	r.Group("invoices", "/invoices", auth).
		GET("", h.Invoices.ListInvoices).
		GET("/:id", h.Invoices.GetInvoice).
		GET("/:id/receipts", h.Invoices.ListReceipts).
		POST("/:id/payments", h.Fees.ProcessPayment)

	r.Group("receipts", "/receipts", auth).
		GET("/:number", h.Invoices.GetReceipt)

	r.Group("catalog", "", auth).
		GET("/fee-heads", h.Invoices.ListFeeHeads).
		GET("/fee-structures", h.Invoices.ListFeeStructures)

	r.Group("settlements", "/settlements/:year_id", auth).
		GET("/summary", h.Settlements.GetSummary).
		POST("/settle", h.Settlements.SettleYear).
		POST("/refresh-overdue", h.Settlements.RefreshOverdue).
		GET("/export", h.Settlements.ExportSummary).
		POST("/archive", h.Settlements.ArchiveSummary)
}

// MountSystemRoutes adds the unauthenticated system group to r
func MountSystemRoutes(r *router.Router, h *SystemHandler) {
	r.Group("system", "/system").
		GET("/info", h.GetSystemInfo).
		GET("/ping", h.Ping)
}
