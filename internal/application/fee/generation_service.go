package fee

import (
	"context"
	"fmt"
	"strconv"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GenerationService bills a cohort of students for an academic year
type GenerationService struct {
	base
	years    fee.AcademicYearRepository
	students fee.StudentRepository
	catalog  fee.FeeCatalogRepository
	scope    TransactionScope
	locker   shared.Locker
}

// NewGenerationService creates a GenerationService
func NewGenerationService(
	years fee.AcademicYearRepository,
	students fee.StudentRepository,
	catalog fee.FeeCatalogRepository,
	scope TransactionScope,
	locker shared.Locker,
	opts ...Option,
) *GenerationService {
	s := &GenerationService{
		base:     newBase(),
		years:    years,
		students: students,
		catalog:  catalog,
		scope:    scope,
		locker:   locker,
	}
	s.apply(opts)
	return s
}

// generationPlan is the catalog data one run prices against
type generationPlan struct {
	year        *fee.AcademicYear
	students    []fee.Student
	heads       map[uuid.UUID]fee.FeeHead
	structures  map[uuid.UUID][]fee.FeeStructure
	discounts   []fee.Discount
	autoApply   bool
	skipPending bool
}

// GenerateAnnualFees creates one invoice per eligible active student. Either
// every invoice of the run is committed or none is; skipped students are
// reported in the result.
func (s *GenerationService) GenerateAnnualFees(ctx context.Context, opCtx OperationContext, req GenerateFeesRequest) (*GenerationResult, error) {
	ctx, span := telemetry.StartOperation(ctx, "fee_generation", "generate_annual_fees")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrSchoolID, opCtx.SchoolID.String(),
		telemetry.SpanAttrAcademicYearID, req.AcademicYearID.String(),
		telemetry.SpanAttrRequestID, opCtx.RequestID,
	)

	if err := opCtx.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	year, err := s.loadYear(ctx, s.years, opCtx.SchoolID, req.AcademicYearID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	key := generationLockKey(opCtx.SchoolID, year.ID)
	lock, err := obtainLock(ctx, s.locker, key, "fee generation for "+year.Name,
		shared.LockOptions{TTL: s.config.GenerationLockTTL})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer s.releaseLock(lock, key)

	plan, err := s.loadPlan(ctx, opCtx.SchoolID, year, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrStudentCount, len(plan.students))

	var (
		result  *GenerationResult
		created []*fee.Invoice
	)
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var txErr error
		result, created, txErr = s.generate(ctx, opCtx, plan, repos)
		return txErr
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Fee generation rolled back",
			zap.String("school_id", opCtx.SchoolID.String()),
			zap.String("academic_year_id", year.ID.String()),
			zap.String("request_id", opCtx.RequestID),
			zap.Error(err))
		return nil, err
	}

	s.recordAudit(ctx, opCtx, AuditActionGenerate, fee.AggregateTypeAcademicYear, year.ID.String(), map[string]any{
		"invoices_created":  result.InvoicesCreated,
		"students_skipped":  len(result.StudentsSkipped),
		"total_amount":      valueobject.FormatAmount(result.TotalAmount),
		"discounts_applied": result.DiscountsApplied,
		"overdue_refreshed": result.OverdueRefreshed,
	})
	s.publish(ctx, fee.NewFeesGeneratedEvent(opCtx.SchoolID, year.ID, result.InvoicesCreated,
		len(result.StudentsSkipped), result.TotalAmount, result.DiscountsApplied, s.clock.Now()))
	for _, inv := range created {
		inv.DrainEvents()
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceCount, result.InvoicesCreated,
		telemetry.SpanAttrAmount, valueobject.FormatAmount(result.TotalAmount),
	)
	telemetry.SetOK(span)

	s.logger.Info("Fees generated",
		zap.String("school_id", opCtx.SchoolID.String()),
		zap.String("academic_year_id", year.ID.String()),
		zap.Int("invoices_created", result.InvoicesCreated),
		zap.Int("students_skipped", len(result.StudentsSkipped)),
		zap.String("total_amount", valueobject.FormatAmount(result.TotalAmount)))

	return result, nil
}

func (s *GenerationService) loadPlan(ctx context.Context, schoolID uuid.UUID, year *fee.AcademicYear, req GenerateFeesRequest) (*generationPlan, error) {
	students, err := s.students.FindActiveBySchool(ctx, schoolID, req.ClassIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load students: %w", err)
	}

	heads, err := s.catalog.FindHeads(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fee heads: %w", err)
	}
	headByID := make(map[uuid.UUID]fee.FeeHead, len(heads))
	for _, h := range heads {
		if err := h.Validate(); err != nil {
			return nil, err
		}
		headByID[h.ID] = h
	}

	structures, err := s.catalog.FindStructures(ctx, schoolID, year.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load fee structures: %w", err)
	}
	byClass := make(map[uuid.UUID][]fee.FeeStructure)
	for _, st := range structures {
		byClass[st.ClassID] = append(byClass[st.ClassID], st)
	}

	plan := &generationPlan{
		year:        year,
		students:    students,
		heads:       headByID,
		structures:  byClass,
		autoApply:   req.autoApplyDiscounts(),
		skipPending: req.skipPending(),
	}
	if plan.autoApply {
		plan.discounts, err = s.catalog.FindDiscounts(ctx, schoolID, year.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load discounts: %w", err)
		}
	}
	return plan, nil
}

func (s *GenerationService) generate(
	ctx context.Context,
	opCtx OperationContext,
	plan *generationPlan,
	repos TransactionalRepositories,
) (*GenerationResult, []*fee.Invoice, error) {
	now := s.clock.Now()
	invoices := repos.InvoiceRepo()

	refreshed, err := refreshPastDue(ctx, invoices, opCtx.SchoolID, nil, now)
	if err != nil {
		return nil, nil, err
	}

	invoiced, err := invoices.FindInvoicedStudentIDs(ctx, opCtx.SchoolID, plan.year.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load invoiced students: %w", err)
	}
	var pending map[uuid.UUID]bool
	if plan.skipPending {
		pending, err = invoices.FindStudentIDsWithOpenInvoicesOutsideYear(ctx, opCtx.SchoolID, plan.year.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load students with pending fees: %w", err)
		}
	}

	result := &GenerationResult{
		AcademicYearID:   plan.year.ID,
		StudentsSkipped:  []SkippedStudent{},
		TotalAmount:      decimal.Zero,
		InvoiceIDs:       []uuid.UUID{},
		OverdueRefreshed: refreshed,
	}
	skip := func(st fee.Student, reason string) {
		result.StudentsSkipped = append(result.StudentsSkipped, SkippedStudent{
			StudentID:   st.ID,
			StudentName: st.FullName,
			Reason:      reason,
		})
	}

	dueDate := plan.year.DueDate(s.config.DueDateOffsetDays)
	period := strconv.Itoa(plan.year.StartDate.Year())
	created := make([]*fee.Invoice, 0, len(plan.students))

	for _, st := range plan.students {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		switch {
		case plan.skipPending && pending[st.ID]:
			skip(st, SkipReasonPendingFees)
			continue
		case !st.HasClass():
			skip(st, SkipReasonNoClass)
			continue
		case invoiced[st.ID]:
			skip(st, SkipReasonAlreadyInvoiced)
			continue
		}
		structures := plan.structures[*st.ClassID]
		if len(structures) == 0 {
			skip(st, SkipReasonNoFeeStructure)
			continue
		}

		priced, err := fee.PriceStudent(fee.PricingInput{
			Student:            st,
			AcademicYearID:     plan.year.ID,
			Structures:         structures,
			Heads:              plan.heads,
			Discounts:          plan.discounts,
			AsOf:               now,
			AutoApplyDiscounts: plan.autoApply,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to price student %s: %w", st.AdmissionNumber, err)
		}

		number, err := repos.NumberGenerator().Next(ctx, opCtx.SchoolID, s.config.InvoicePrefix, period)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to allocate invoice number: %w", err)
		}

		inv, err := fee.NewInvoice(fee.NewInvoiceParams{
			SchoolID:       opCtx.SchoolID,
			InvoiceNumber:  number,
			StudentID:      st.ID,
			AcademicYearID: plan.year.ID,
			ClassID:        *st.ClassID,
			DueDate:        dueDate,
			Lines:          priced.Lines,
			CreatedBy:      opCtx.ActorID,
			Now:            now,
		})
		if err != nil {
			return nil, nil, err
		}

		created = append(created, inv)
		result.InvoiceIDs = append(result.InvoiceIDs, inv.ID)
		result.TotalAmount = result.TotalAmount.Add(inv.TotalAmount)
		result.DiscountsApplied += priced.DiscountsApplied
	}

	if len(created) > 0 {
		if err := invoices.CreateBatch(ctx, created); err != nil {
			return nil, nil, fmt.Errorf("failed to save invoices: %w", err)
		}
	}
	result.InvoicesCreated = len(created)
	return result, created, nil
}
