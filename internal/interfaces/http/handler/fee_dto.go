package handler

import (
	"fmt"
	"time"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/google/uuid"
)

// Amounts travel as strings with two decimals, never as JSON numbers.

// GenerateFeesRequest is the body of POST /fees/generate
type GenerateFeesRequest struct {
	AcademicYearID              string   `json:"academic_year_id" binding:"required,uuid"`
	AutoApplyDiscounts          *bool    `json:"auto_apply_discounts"`
	SkipStudentsWithPendingFees *bool    `json:"skip_students_with_pending_fees"`
	ClassIDs                    []string `json:"class_ids" binding:"omitempty,dive,uuid"`
}

func (r GenerateFeesRequest) toCommand() (appfee.GenerateFeesRequest, error) {
	yearID, err := uuid.Parse(r.AcademicYearID)
	if err != nil {
		return appfee.GenerateFeesRequest{}, fmt.Errorf("academic_year_id: %w", err)
	}
	cmd := appfee.GenerateFeesRequest{
		AcademicYearID:              yearID,
		AutoApplyDiscounts:          r.AutoApplyDiscounts,
		SkipStudentsWithPendingFees: r.SkipStudentsWithPendingFees,
	}
	for _, s := range r.ClassIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return appfee.GenerateFeesRequest{}, fmt.Errorf("class_ids: %w", err)
		}
		cmd.ClassIDs = append(cmd.ClassIDs, id)
	}
	return cmd, nil
}

// CustomAllocationRequest pins part of a payment to one fee head
type CustomAllocationRequest struct {
	HeadID string `json:"head_id" binding:"required,uuid"`
	Amount string `json:"amount" binding:"required,money2dp"`
}

// ProcessPaymentRequest is the body of POST /invoices/:id/payments
type ProcessPaymentRequest struct {
	Amount      string                    `json:"amount" binding:"required,money2dp"`
	Mode        string                    `json:"mode" binding:"required,max=20"`
	Reference   string                    `json:"reference" binding:"max=100"`
	Allocations []CustomAllocationRequest `json:"allocations" binding:"omitempty,dive"`
}

func (r ProcessPaymentRequest) toCommand(invoiceID uuid.UUID, idempotencyKey string) (appfee.ProcessPaymentRequest, error) {
	amount, err := valueobject.ParseAmount(r.Amount)
	if err != nil {
		return appfee.ProcessPaymentRequest{}, fmt.Errorf("amount: %w", err)
	}
	cmd := appfee.ProcessPaymentRequest{
		InvoiceID:      invoiceID,
		Amount:         amount,
		Mode:           r.Mode,
		Reference:      r.Reference,
		IdempotencyKey: idempotencyKey,
	}
	for _, a := range r.Allocations {
		headID, err := uuid.Parse(a.HeadID)
		if err != nil {
			return appfee.ProcessPaymentRequest{}, fmt.Errorf("allocations.head_id: %w", err)
		}
		amt, err := valueobject.ParseAmount(a.Amount)
		if err != nil {
			return appfee.ProcessPaymentRequest{}, fmt.Errorf("allocations.amount: %w", err)
		}
		cmd.CustomAllocations = append(cmd.CustomAllocations, fee.CustomAllocation{HeadID: headID, Amount: amt})
	}
	return cmd, nil
}

// InvoiceListRequest holds the GET /invoices query
type InvoiceListRequest struct {
	dto.ListRequest
	AcademicYearID string `form:"academic_year_id" binding:"omitempty,uuid"`
	StudentID      string `form:"student_id" binding:"omitempty,uuid"`
	ClassID        string `form:"class_id" binding:"omitempty,uuid"`
	Status         string `form:"status" binding:"omitempty,oneof=PENDING PARTIAL PAID OVERDUE"`
	InvoiceNumber  string `form:"invoice_number" binding:"omitempty,max=64"`
	Settled        *bool  `form:"settled"`
	DueBefore      string `form:"due_before" binding:"omitempty,datetime=2006-01-02"`
}

func (r InvoiceListRequest) toFilter() (fee.InvoiceFilter, error) {
	f := fee.InvoiceFilter{PageRequest: r.ListRequest.PageRequest()}

	var err error
	if f.AcademicYearID, err = optionalUUID(r.AcademicYearID); err != nil {
		return f, fmt.Errorf("academic_year_id: %w", err)
	}
	if f.StudentID, err = optionalUUID(r.StudentID); err != nil {
		return f, fmt.Errorf("student_id: %w", err)
	}
	if f.ClassID, err = optionalUUID(r.ClassID); err != nil {
		return f, fmt.Errorf("class_id: %w", err)
	}
	if r.Status != "" {
		status := fee.InvoiceStatus(r.Status)
		f.Status = &status
	}
	f.InvoiceNumber = r.InvoiceNumber
	f.Settled = r.Settled
	if r.DueBefore != "" {
		due, err := time.Parse(time.DateOnly, r.DueBefore)
		if err != nil {
			return f, fmt.Errorf("due_before: %w", err)
		}
		f.DueBefore = &due
	}
	return f, nil
}

// FeeStructureQuery holds the GET /fee-structures query
type FeeStructureQuery struct {
	AcademicYearID string `form:"academic_year_id" binding:"required,uuid"`
	ClassID        string `form:"class_id" binding:"omitempty,uuid"`
}

// SkippedStudentResponse names a student generation did not bill
type SkippedStudentResponse struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Reason      string `json:"reason"`
}

// GenerationResponse summarizes a generation run
type GenerationResponse struct {
	AcademicYearID   string                   `json:"academic_year_id"`
	InvoicesCreated  int                      `json:"invoices_created"`
	StudentsSkipped  []SkippedStudentResponse `json:"students_skipped"`
	TotalAmount      string                   `json:"total_amount"`
	DiscountsApplied int                      `json:"discounts_applied"`
	InvoiceIDs       []string                 `json:"invoice_ids"`
	OverdueRefreshed int                      `json:"overdue_refreshed"`
}

func newGenerationResponse(r *appfee.GenerationResult) GenerationResponse {
	resp := GenerationResponse{
		AcademicYearID:   r.AcademicYearID.String(),
		InvoicesCreated:  r.InvoicesCreated,
		StudentsSkipped:  make([]SkippedStudentResponse, 0, len(r.StudentsSkipped)),
		TotalAmount:      dto.Money(r.TotalAmount),
		DiscountsApplied: r.DiscountsApplied,
		InvoiceIDs:       make([]string, 0, len(r.InvoiceIDs)),
		OverdueRefreshed: r.OverdueRefreshed,
	}
	for _, s := range r.StudentsSkipped {
		resp.StudentsSkipped = append(resp.StudentsSkipped, SkippedStudentResponse{
			StudentID:   s.StudentID.String(),
			StudentName: s.StudentName,
			Reason:      s.Reason,
		})
	}
	for _, id := range r.InvoiceIDs {
		resp.InvoiceIDs = append(resp.InvoiceIDs, id.String())
	}
	return resp
}

// AllocationResponse is one fee head's share of a payment
type AllocationResponse struct {
	BreakupID     string `json:"breakup_id"`
	HeadID        string `json:"head_id"`
	HeadName      string `json:"head_name"`
	AmountApplied string `json:"amount_applied"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
}

// PaymentResponse is the outcome of a processed payment
type PaymentResponse struct {
	ReceiptID      string               `json:"receipt_id"`
	ReceiptNumber  string               `json:"receipt_number"`
	InvoiceID      string               `json:"invoice_id"`
	Amount         string               `json:"amount"`
	Mode           string               `json:"mode"`
	Allocations    []AllocationResponse `json:"allocations"`
	InvoiceStatus  string               `json:"invoice_status"`
	InvoicePaid    string               `json:"invoice_paid"`
	InvoiceBalance string               `json:"invoice_balance"`
	CreatedAt      time.Time            `json:"created_at"`
	Replayed       bool                 `json:"replayed"`
}

func newPaymentResponse(r *appfee.PaymentResult) PaymentResponse {
	resp := PaymentResponse{
		ReceiptID:      r.ReceiptID.String(),
		ReceiptNumber:  r.ReceiptNumber,
		InvoiceID:      r.InvoiceID.String(),
		Amount:         dto.Money(r.Amount),
		Mode:           string(r.Mode),
		Allocations:    make([]AllocationResponse, 0, len(r.Allocations)),
		InvoiceStatus:  string(r.InvoiceStatus),
		InvoicePaid:    dto.Money(r.InvoicePaid),
		InvoiceBalance: dto.Money(r.InvoiceBalance),
		CreatedAt:      r.CreatedAt,
		Replayed:       r.Replayed,
	}
	for _, a := range r.Allocations {
		resp.Allocations = append(resp.Allocations, AllocationResponse{
			BreakupID:     a.BreakupID.String(),
			HeadID:        a.HeadID.String(),
			HeadName:      a.HeadName,
			AmountApplied: dto.Money(a.AmountApplied),
			BalanceBefore: dto.Money(a.BalanceBefore),
			BalanceAfter:  dto.Money(a.BalanceAfter),
		})
	}
	return resp
}

// BreakupResponse is one fee head line of an invoice
type BreakupResponse struct {
	ID             string `json:"id"`
	HeadID         string `json:"head_id"`
	HeadName       string `json:"head_name"`
	GrossAmount    string `json:"gross_amount"`
	DiscountAmount string `json:"discount_amount"`
	BaseAmount     string `json:"base_amount"`
	TaxAmount      string `json:"tax_amount"`
	Amount         string `json:"amount"`
	PaidAmount     string `json:"paid_amount"`
	Balance        string `json:"balance"`
}

// InvoiceResponse is an invoice with its status as of the request
type InvoiceResponse struct {
	ID             string            `json:"id"`
	InvoiceNumber  string            `json:"invoice_number"`
	StudentID      string            `json:"student_id"`
	AcademicYearID string            `json:"academic_year_id"`
	ClassID        string            `json:"class_id"`
	TotalAmount    string            `json:"total_amount"`
	PaidAmount     string            `json:"paid_amount"`
	DiscountAmount string            `json:"discount_amount"`
	RoundOffAmount string            `json:"round_off_amount"`
	Balance        string            `json:"balance"`
	DueDate        string            `json:"due_date"`
	Status         string            `json:"status"`
	IsSettled      bool              `json:"is_settled"`
	SettledDate    *string           `json:"settled_date"`
	CreatedAt      time.Time         `json:"created_at"`
	Breakups       []BreakupResponse `json:"breakups"`
}

func newInvoiceResponse(v appfee.InvoiceView) InvoiceResponse {
	resp := InvoiceResponse{
		ID:             v.ID.String(),
		InvoiceNumber:  v.InvoiceNumber,
		StudentID:      v.StudentID.String(),
		AcademicYearID: v.AcademicYearID.String(),
		ClassID:        v.ClassID.String(),
		TotalAmount:    dto.Money(v.TotalAmount),
		PaidAmount:     dto.Money(v.PaidAmount),
		DiscountAmount: dto.Money(v.DiscountAmount),
		RoundOffAmount: dto.Money(v.RoundOffAmount),
		Balance:        dto.Money(v.Balance),
		DueDate:        dto.Date(v.DueDate),
		Status:         string(v.Status),
		IsSettled:      v.IsSettled,
		SettledDate:    dto.DatePtr(v.SettledDate),
		CreatedAt:      v.CreatedAt,
		Breakups:       make([]BreakupResponse, 0, len(v.Breakups)),
	}
	for _, b := range v.Breakups {
		resp.Breakups = append(resp.Breakups, BreakupResponse{
			ID:             b.ID.String(),
			HeadID:         b.HeadID.String(),
			HeadName:       b.HeadName,
			GrossAmount:    dto.Money(b.GrossAmount),
			DiscountAmount: dto.Money(b.DiscountAmount),
			BaseAmount:     dto.Money(b.BaseAmount),
			TaxAmount:      dto.Money(b.TaxAmount),
			Amount:         dto.Money(b.Amount),
			PaidAmount:     dto.Money(b.PaidAmount),
			Balance:        dto.Money(b.Balance),
		})
	}
	return resp
}

// ReceiptResponse is a stored receipt with its allocation lines
type ReceiptResponse struct {
	ID            string               `json:"id"`
	ReceiptNumber string               `json:"receipt_number"`
	InvoiceID     string               `json:"invoice_id"`
	StudentID     string               `json:"student_id"`
	Amount        string               `json:"amount"`
	Mode          string               `json:"mode"`
	Reference     string               `json:"reference,omitempty"`
	CreatedBy     string               `json:"created_by"`
	CreatedAt     time.Time            `json:"created_at"`
	Allocations   []AllocationResponse `json:"allocations"`
}

func newReceiptResponse(r fee.Receipt) ReceiptResponse {
	resp := ReceiptResponse{
		ID:            r.ID.String(),
		ReceiptNumber: r.ReceiptNumber,
		InvoiceID:     r.InvoiceID.String(),
		StudentID:     r.StudentID.String(),
		Amount:        dto.Money(r.Amount),
		Mode:          string(r.Mode),
		Reference:     r.Reference,
		CreatedBy:     r.CreatedBy.String(),
		CreatedAt:     r.CreatedAt,
		Allocations:   make([]AllocationResponse, 0, len(r.Allocations)),
	}
	for _, a := range r.Allocations {
		resp.Allocations = append(resp.Allocations, AllocationResponse{
			BreakupID:     a.BreakupID.String(),
			HeadID:        a.HeadID.String(),
			HeadName:      a.HeadName,
			AmountApplied: dto.Money(a.AmountApplied),
			BalanceBefore: dto.Money(a.BalanceBefore),
			BalanceAfter:  dto.Money(a.BalanceAfter),
		})
	}
	return resp
}

// SummaryTotalsResponse holds the year's money totals
type SummaryTotalsResponse struct {
	InvoiceCount         int    `json:"invoice_count"`
	TotalBilled          string `json:"total_billed"`
	TotalPaid            string `json:"total_paid"`
	TotalOutstanding     string `json:"total_outstanding"`
	TotalDiscount        string `json:"total_discount"`
	TotalRoundOff        string `json:"total_round_off"`
	CollectionPercentage string `json:"collection_percentage"`
}

// ClassSummaryResponse holds one class's totals
type ClassSummaryResponse struct {
	ClassID              string `json:"class_id"`
	ClassName            string `json:"class_name"`
	InvoiceCount         int    `json:"invoice_count"`
	TotalBilled          string `json:"total_billed"`
	TotalPaid            string `json:"total_paid"`
	Outstanding          string `json:"outstanding"`
	CollectionPercentage string `json:"collection_percentage"`
}

// SettlementSummaryResponse is the year-end collection report
type SettlementSummaryResponse struct {
	AcademicYearID  string                 `json:"academic_year_id"`
	AsOf            time.Time              `json:"as_of"`
	Totals          SummaryTotalsResponse  `json:"totals"`
	StatusBreakdown map[string]int         `json:"status_breakdown"`
	Classwise       []ClassSummaryResponse `json:"classwise"`
	SettledCount    int                    `json:"settled_count"`
	UnsettledCount  int                    `json:"unsettled_count"`
}

func newSettlementSummaryResponse(s *fee.SettlementSummary) SettlementSummaryResponse {
	resp := SettlementSummaryResponse{
		AcademicYearID: s.AcademicYearID.String(),
		AsOf:           s.AsOf,
		Totals: SummaryTotalsResponse{
			InvoiceCount:         s.Totals.InvoiceCount,
			TotalBilled:          dto.Money(s.Totals.TotalBilled),
			TotalPaid:            dto.Money(s.Totals.TotalPaid),
			TotalOutstanding:     dto.Money(s.Totals.TotalOutstanding),
			TotalDiscount:        dto.Money(s.Totals.TotalDiscount),
			TotalRoundOff:        dto.Money(s.Totals.TotalRoundOff),
			CollectionPercentage: dto.Money(s.Totals.CollectionPercentage),
		},
		StatusBreakdown: make(map[string]int, len(s.StatusBreakdown)),
		Classwise:       make([]ClassSummaryResponse, 0, len(s.Classwise)),
		SettledCount:    s.SettledCount,
		UnsettledCount:  s.UnsettledCount,
	}
	for _, status := range fee.AllInvoiceStatuses() {
		resp.StatusBreakdown[string(status)] = s.StatusBreakdown[status]
	}
	for _, c := range s.Classwise {
		resp.Classwise = append(resp.Classwise, ClassSummaryResponse{
			ClassID:              c.ClassID.String(),
			ClassName:            c.ClassName,
			InvoiceCount:         c.InvoiceCount,
			TotalBilled:          dto.Money(c.TotalBilled),
			TotalPaid:            dto.Money(c.TotalPaid),
			Outstanding:          dto.Money(c.Outstanding),
			CollectionPercentage: dto.Money(c.CollectionPercentage),
		})
	}
	return resp
}

// SettleResponse is the outcome of settling a year
type SettleResponse struct {
	AcademicYearID string `json:"academic_year_id"`
	SettledCount   int    `json:"settled_count"`
	SettledDate    string `json:"settled_date"`
}

// RefreshOverdueResponse reports how many invoices turned overdue
type RefreshOverdueResponse struct {
	AcademicYearID string `json:"academic_year_id"`
	Refreshed      int    `json:"refreshed"`
}

// ArchiveResponse names the stored settlement workbook
type ArchiveResponse struct {
	AcademicYearID string `json:"academic_year_id"`
	ObjectKey      string `json:"object_key"`
}

// FeeHeadResponse is a fee head with its tax rule
type FeeHeadResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TaxRate      string `json:"tax_rate"`
	TaxInclusive bool   `json:"tax_inclusive"`
}

// FeeStructureResponse is what a class owes for a head in a year
type FeeStructureResponse struct {
	ID             string `json:"id"`
	AcademicYearID string `json:"academic_year_id"`
	ClassID        string `json:"class_id"`
	HeadID         string `json:"head_id"`
	Amount         string `json:"amount"`
}
