package fee

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/strategy"
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PaymentService records payments and allocates them across invoice lines
type PaymentService struct {
	base
	scope       TransactionScope
	locker      shared.Locker
	allocator   strategy.PaymentAllocationStrategy
	idempotency shared.IdempotencyStore
}

// NewPaymentService creates a PaymentService. allocator spreads payments
// that arrive without explicit allocations.
func NewPaymentService(
	scope TransactionScope,
	locker shared.Locker,
	allocator strategy.PaymentAllocationStrategy,
	opts ...Option,
) *PaymentService {
	s := &PaymentService{
		base:      newBase(),
		scope:     scope,
		locker:    locker,
		allocator: allocator,
	}
	s.apply(opts)
	return s
}

// WithIdempotencyStore answers retried requests carrying the same key
// with the first attempt's receipt
func (s *PaymentService) WithIdempotencyStore(store shared.IdempotencyStore) *PaymentService {
	s.idempotency = store
	return s
}

// ProcessPayment records one payment against one invoice. The receipt, its
// allocation lines, the breakup updates and the invoice status are written
// in a single transaction while the invoice is locked.
func (s *PaymentService) ProcessPayment(ctx context.Context, opCtx OperationContext, req ProcessPaymentRequest) (*PaymentResult, error) {
	ctx, span := telemetry.StartOperation(ctx, "payment", "process_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrSchoolID, opCtx.SchoolID.String(),
		telemetry.SpanAttrInvoiceID, req.InvoiceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrPaymentMode, req.Mode,
		telemetry.SpanAttrRequestID, opCtx.RequestID,
	)

	mode, err := s.validateRequest(opCtx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey != "" {
		telemetry.SetAttribute(span, telemetry.SpanAttrIdempotencyKey, req.IdempotencyKey)
		replay, reserved, err := s.reserve(ctx, opCtx, req)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if replay != nil {
			telemetry.AddEvent(span, "payment_replayed", telemetry.SpanAttrReceiptNumber, replay.ReceiptNumber)
			telemetry.SetOK(span)
			return replay, nil
		}
		if reserved {
			completed := false
			defer func() {
				if !completed {
					s.releaseIdempotencyKey(opCtx.SchoolID, req.IdempotencyKey)
				}
			}()
			result, err := s.process(ctx, opCtx, req, mode)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, err
			}
			completed = true
			if err := s.idempotency.Complete(ctx, idempotencyKey(opCtx.SchoolID, req.IdempotencyKey),
				result.ReceiptNumber, s.config.IdempotencyTTL); err != nil {
				s.logger.Warn("Failed to store idempotency result",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.Error(err))
			}
			s.finishSpan(span, result)
			return result, nil
		}
	}

	result, err := s.process(ctx, opCtx, req, mode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.finishSpan(span, result)
	return result, nil
}

func (s *PaymentService) finishSpan(span trace.Span, result *PaymentResult) {
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReceiptNumber, result.ReceiptNumber,
		telemetry.SpanAttrInvoiceStatus, string(result.InvoiceStatus),
	)
	telemetry.SetOK(span)
}

// validateRequest rejects malformed input before anything is read or locked
func (s *PaymentService) validateRequest(opCtx OperationContext, req ProcessPaymentRequest) (fee.PaymentMode, error) {
	if err := opCtx.Validate(); err != nil {
		return "", err
	}
	if !req.Amount.IsPositive() {
		return "", shared.NewDomainError(shared.CodeValidation, "payment amount must be greater than zero")
	}
	if !valueobject.HasCentPrecision(req.Amount) {
		return "", shared.NewDomainErrorf(shared.CodeValidation,
			"payment amount %s has more than 2 decimal places", req.Amount.String())
	}
	if req.InvoiceID == uuid.Nil {
		return "", shared.NewDomainError(shared.CodeValidation, "invoice is required")
	}
	return fee.ParsePaymentMode(req.Mode)
}

// reserve claims the idempotency key. It returns the stored result when the
// key has already completed, and reserved=false when no store is configured.
func (s *PaymentService) reserve(ctx context.Context, opCtx OperationContext, req ProcessPaymentRequest) (*PaymentResult, bool, error) {
	if s.idempotency == nil {
		return nil, false, nil
	}
	reserved, stored, err := s.idempotency.Reserve(ctx, idempotencyKey(opCtx.SchoolID, req.IdempotencyKey), s.config.IdempotencyTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, true, nil
	}
	if stored == "" {
		return nil, false, fee.NewConcurrentModificationError("payment with idempotency key "+req.IdempotencyKey, nil)
	}

	var replay *PaymentResult
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		receipt, err := repos.ReceiptRepo().FindByNumber(ctx, opCtx.SchoolID, stored)
		if err != nil {
			return fmt.Errorf("failed to load receipt %s: %w", stored, err)
		}
		if receipt == nil {
			return fee.NewNotFoundError("receipt", stored)
		}
		replay, err = s.replay(ctx, opCtx, repos, receipt, req)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return replay, false, nil
}

func (s *PaymentService) replay(
	ctx context.Context,
	opCtx OperationContext,
	repos TransactionalRepositories,
	receipt *fee.Receipt,
	req ProcessPaymentRequest,
) (*PaymentResult, error) {
	if receipt.InvoiceID != req.InvoiceID || !receipt.Amount.Equal(req.Amount) {
		return nil, shared.NewDomainErrorf(shared.CodeValidation,
			"idempotency key %q was already used for a different payment", req.IdempotencyKey)
	}
	inv, err := repos.InvoiceRepo().FindByIDForSchool(ctx, opCtx.SchoolID, receipt.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, fee.NewNotFoundError("invoice", receipt.InvoiceID.String())
	}
	return newPaymentResult(receipt, inv, s.clock.Now(), true), nil
}

func (s *PaymentService) releaseIdempotencyKey(schoolID uuid.UUID, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.idempotency.Release(ctx, idempotencyKey(schoolID, key)); err != nil {
		s.logger.Warn("Failed to release idempotency key", zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (s *PaymentService) process(ctx context.Context, opCtx OperationContext, req ProcessPaymentRequest, mode fee.PaymentMode) (*PaymentResult, error) {
	key := invoiceLockKey(req.InvoiceID)
	lock, err := obtainLock(ctx, s.locker, key, "invoice "+req.InvoiceID.String(), shared.LockOptions{
		TTL:  s.config.InvoiceLockTTL,
		Wait: s.config.InvoiceLockWait,
	})
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(lock, key)

	var (
		result  *PaymentResult
		receipt *fee.Receipt
		invoice *fee.Invoice
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var txErr error
		result, receipt, invoice, txErr = s.applyPayment(ctx, opCtx, req, mode, repos)
		return txErr
	})
	if err != nil {
		s.logger.Warn("Payment rolled back",
			zap.String("school_id", opCtx.SchoolID.String()),
			zap.String("invoice_id", req.InvoiceID.String()),
			zap.String("amount", valueobject.FormatAmount(req.Amount)),
			zap.String("request_id", opCtx.RequestID),
			zap.Error(err))
		return nil, err
	}
	if result.Replayed {
		return result, nil
	}

	s.recordAudit(ctx, opCtx, AuditActionPayment, fee.AggregateTypeInvoice, invoice.ID.String(), map[string]any{
		"receipt_number": receipt.ReceiptNumber,
		"invoice_number": invoice.InvoiceNumber,
		"amount":         valueobject.FormatAmount(receipt.Amount),
		"mode":           string(receipt.Mode),
		"invoice_status": string(invoice.Status),
		"explicit":       len(req.CustomAllocations) > 0,
	})
	events := append([]shared.DomainEvent{fee.NewPaymentReceivedEvent(receipt, invoice)}, invoice.DrainEvents()...)
	s.publish(ctx, events...)

	s.logger.Info("Payment processed",
		zap.String("school_id", opCtx.SchoolID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("receipt_number", receipt.ReceiptNumber),
		zap.String("amount", valueobject.FormatAmount(receipt.Amount)),
		zap.String("status", string(invoice.Status)))

	return result, nil
}

func (s *PaymentService) applyPayment(
	ctx context.Context,
	opCtx OperationContext,
	req ProcessPaymentRequest,
	mode fee.PaymentMode,
	repos TransactionalRepositories,
) (*PaymentResult, *fee.Receipt, *fee.Invoice, error) {
	inv, err := repos.InvoiceRepo().FindByIDForUpdate(ctx, opCtx.SchoolID, req.InvoiceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if inv == nil {
		return nil, nil, nil, fee.NewNotFoundError("invoice", req.InvoiceID.String())
	}

	if req.IdempotencyKey != "" {
		prior, err := repos.ReceiptRepo().FindByIdempotencyKey(ctx, opCtx.SchoolID, req.IdempotencyKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to look up idempotency key: %w", err)
		}
		if prior != nil {
			replay, err := s.replay(ctx, opCtx, repos, prior, req)
			return replay, prior, inv, err
		}
	}

	if err := inv.ValidatePayment(req.Amount); err != nil {
		return nil, nil, nil, err
	}

	now := s.clock.Now()
	allocations, err := s.plan(ctx, opCtx, inv, req, now)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := inv.ApplyAllocations(allocations, now); err != nil {
		return nil, nil, nil, err
	}
	if err := inv.CheckInvariants(); err != nil {
		return nil, nil, nil, err
	}

	number, err := repos.NumberGenerator().Next(ctx, opCtx.SchoolID, s.config.ReceiptPrefix, now.Format("20060102"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to allocate receipt number: %w", err)
	}
	receipt, err := fee.NewReceipt(fee.NewReceiptParams{
		ReceiptNumber:  number,
		Invoice:        inv,
		Amount:         req.Amount,
		Mode:           mode,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      opCtx.ActorID,
		Allocations:    allocations,
		Now:            now,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	if err := repos.InvoiceRepo().SaveWithLock(ctx, inv); err != nil {
		return nil, nil, nil, err
	}
	if err := repos.ReceiptRepo().Create(ctx, receipt); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to save receipt: %w", err)
	}

	return newPaymentResult(receipt, inv, now, false), receipt, inv, nil
}

// plan chooses the allocation: caller-chosen lines when given, otherwise
// the configured strategy over the outstanding lines
func (s *PaymentService) plan(ctx context.Context, opCtx OperationContext, inv *fee.Invoice, req ProcessPaymentRequest, now time.Time) ([]strategy.Allocation, error) {
	if len(req.CustomAllocations) > 0 {
		return inv.PlanExplicitAllocation(req.Amount, req.CustomAllocations)
	}

	result, err := s.allocator.Allocate(ctx, strategy.AllocationContext{
		SchoolID:      opCtx.SchoolID,
		InvoiceID:     inv.ID,
		PaymentAmount: req.Amount,
		PaymentDate:   now,
	}, inv.OutstandingLines())
	if err != nil {
		return nil, fmt.Errorf("allocation strategy %s failed: %w", s.allocator.Name(), err)
	}
	if !result.TotalAllocated.Equal(req.Amount) {
		// ValidatePayment already bounds the amount by the outstanding balance
		return nil, fmt.Errorf("allocation strategy %s placed %s of %s",
			s.allocator.Name(), valueobject.FormatAmount(result.TotalAllocated), valueobject.FormatAmount(req.Amount))
	}
	return result.Allocations, nil
}
