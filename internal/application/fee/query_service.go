package fee

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InvoiceQueryService serves read-only invoice, receipt and catalog views
type InvoiceQueryService struct {
	base
	invoices fee.InvoiceRepository
	receipts fee.ReceiptRepository
	catalog  fee.FeeCatalogRepository
}

// NewInvoiceQueryService creates an InvoiceQueryService
func NewInvoiceQueryService(
	invoices fee.InvoiceRepository,
	receipts fee.ReceiptRepository,
	catalog fee.FeeCatalogRepository,
	opts ...Option,
) *InvoiceQueryService {
	s := &InvoiceQueryService{
		base:     newBase(),
		invoices: invoices,
		receipts: receipts,
		catalog:  catalog,
	}
	s.apply(opts)
	return s
}

// GetInvoice returns one invoice with its status evaluated now
func (s *InvoiceQueryService) GetInvoice(ctx context.Context, opCtx OperationContext, invoiceID uuid.UUID) (*InvoiceView, error) {
	if err := opCtx.Validate(); err != nil {
		return nil, err
	}
	inv, err := s.invoices.FindByIDForSchool(ctx, opCtx.SchoolID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, fee.NewNotFoundError("invoice", invoiceID.String())
	}
	view := NewInvoiceView(inv, s.clock.Now())
	return &view, nil
}

// ListInvoices returns a page of invoices. Status filters and the returned
// views both use the status evaluated now.
func (s *InvoiceQueryService) ListInvoices(ctx context.Context, opCtx OperationContext, filter fee.InvoiceFilter) (*shared.Page[InvoiceView], error) {
	if err := opCtx.Validate(); err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeValidation, "unknown invoice status %q", *filter.Status)
	}
	filter.PageRequest = filter.PageRequest.Normalize()
	now := s.clock.Now()
	filter.StatusAsOf = now

	invoices, total, err := s.invoices.FindAll(ctx, opCtx.SchoolID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	views := make([]InvoiceView, 0, len(invoices))
	for i := range invoices {
		views = append(views, NewInvoiceView(&invoices[i], now))
	}
	page := shared.NewPage(views, total, filter.PageRequest)
	return &page, nil
}

// ListReceipts returns an invoice's receipts, newest first
func (s *InvoiceQueryService) ListReceipts(ctx context.Context, opCtx OperationContext, invoiceID uuid.UUID) ([]fee.Receipt, error) {
	if err := opCtx.Validate(); err != nil {
		return nil, err
	}
	inv, err := s.invoices.FindByIDForSchool(ctx, opCtx.SchoolID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, fee.NewNotFoundError("invoice", invoiceID.String())
	}
	receipts, err := s.receipts.FindByInvoice(ctx, opCtx.SchoolID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].CreatedAt.After(receipts[j].CreatedAt)
	})
	return receipts, nil
}

// GetReceipt returns a receipt by its number
func (s *InvoiceQueryService) GetReceipt(ctx context.Context, opCtx OperationContext, number string) (*fee.Receipt, error) {
	if err := opCtx.Validate(); err != nil {
		return nil, err
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "receipt number is required")
	}
	r, err := s.receipts.FindByNumber(ctx, opCtx.SchoolID, number)
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt: %w", err)
	}
	if r == nil {
		return nil, fee.NewNotFoundError("receipt", number)
	}
	return r, nil
}

// ListFeeHeads returns the school's fee heads sorted by name
func (s *InvoiceQueryService) ListFeeHeads(ctx context.Context, opCtx OperationContext) ([]fee.FeeHead, error) {
	if err := opCtx.Validate(); err != nil {
		return nil, err
	}
	heads, err := s.catalog.FindHeads(ctx, opCtx.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee heads: %w", err)
	}
	sort.SliceStable(heads, func(i, j int) bool { return heads[i].Name < heads[j].Name })
	return heads, nil
}

// ListFeeStructures returns a year's fee structures, optionally for one class
func (s *InvoiceQueryService) ListFeeStructures(ctx context.Context, opCtx OperationContext, academicYearID uuid.UUID, classID *uuid.UUID) ([]fee.FeeStructure, error) {
	if err := opCtx.Validate(); err != nil {
		return nil, err
	}
	if academicYearID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "academic year is required")
	}
	structures, err := s.catalog.FindStructures(ctx, opCtx.SchoolID, academicYearID, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee structures: %w", err)
	}
	return structures, nil
}
