package fee

import (
	"context"
	"fmt"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettlementService reports on and closes out an academic year's collection
type SettlementService struct {
	base
	years    fee.AcademicYearRepository
	classes  fee.ClassRepository
	invoices fee.InvoiceRepository
	scope    TransactionScope
	exporter SummaryExporter
	archive  ArchiveStorage
}

// NewSettlementService creates a SettlementService
func NewSettlementService(
	years fee.AcademicYearRepository,
	classes fee.ClassRepository,
	invoices fee.InvoiceRepository,
	scope TransactionScope,
	opts ...Option,
) *SettlementService {
	s := &SettlementService{
		base:     newBase(),
		years:    years,
		classes:  classes,
		invoices: invoices,
		scope:    scope,
	}
	s.apply(opts)
	return s
}

// WithExporter enables ExportSummary
func (s *SettlementService) WithExporter(exporter SummaryExporter) *SettlementService {
	s.exporter = exporter
	return s
}

// WithArchive enables ArchiveSummary
func (s *SettlementService) WithArchive(archive ArchiveStorage) *SettlementService {
	s.archive = archive
	return s
}

// GetSettlementSummary aggregates the year's invoices. Nothing is written.
func (s *SettlementService) GetSettlementSummary(ctx context.Context, opCtx OperationContext, academicYearID uuid.UUID) (*fee.SettlementSummary, error) {
	ctx, span := telemetry.StartOperation(ctx, "settlement", "get_summary")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrSchoolID, opCtx.SchoolID.String(),
		telemetry.SpanAttrAcademicYearID, academicYearID.String(),
	)

	report, err := s.buildReport(ctx, opCtx, academicYearID, false)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceCount, report.Summary.Totals.InvoiceCount)
	telemetry.SetOK(span)
	return &report.Summary, nil
}

func (s *SettlementService) buildReport(ctx context.Context, opCtx OperationContext, academicYearID uuid.UUID, withInvoices bool) (*SettlementReport, error) {
	if err := opCtx.Validate(); err != nil {
		return nil, err
	}
	year, err := s.loadYear(ctx, s.years, opCtx.SchoolID, academicYearID)
	if err != nil {
		return nil, err
	}

	invoices, err := s.invoices.FindByYear(ctx, opCtx.SchoolID, year.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}
	classes, err := s.classes.FindBySchool(ctx, opCtx.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load classes: %w", err)
	}
	names := make(map[uuid.UUID]string, len(classes))
	for _, c := range classes {
		names[c.ID] = c.Name
	}

	asOf := s.clock.Now()
	report := &SettlementReport{
		SchoolID:     opCtx.SchoolID,
		AcademicYear: *year,
		Summary:      fee.Summarize(year.ID, invoices, names, asOf),
	}
	if withInvoices {
		report.Invoices = make([]InvoiceView, 0, len(invoices))
		for i := range invoices {
			report.Invoices = append(report.Invoices, NewInvoiceView(&invoices[i], asOf))
		}
	}
	return report, nil
}

// SettleYear marks every PAID, unsettled invoice of the year as settled
// today. Running it again only touches invoices paid since the last run.
func (s *SettlementService) SettleYear(ctx context.Context, opCtx OperationContext, academicYearID uuid.UUID) (*SettleResult, error) {
	ctx, span := telemetry.StartOperation(ctx, "settlement", "settle_year")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrSchoolID, opCtx.SchoolID.String(),
		telemetry.SpanAttrAcademicYearID, academicYearID.String(),
		telemetry.SpanAttrRequestID, opCtx.RequestID,
	)

	if err := opCtx.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	year, err := s.loadYear(ctx, s.years, opCtx.SchoolID, academicYearID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.clock.Now()
	settled := 0
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		settled = 0
		candidates, err := repos.InvoiceRepo().FindSettleable(ctx, opCtx.SchoolID, year.ID)
		if err != nil {
			return fmt.Errorf("failed to load settleable invoices: %w", err)
		}
		for i := range candidates {
			inv := &candidates[i]
			if !inv.Settle(now) {
				continue
			}
			if err := repos.InvoiceRepo().UpdateStatus(ctx, inv); err != nil {
				return fmt.Errorf("failed to settle invoice %s: %w", inv.InvoiceNumber, err)
			}
			settled++
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	y, m, d := now.Date()
	result := &SettleResult{
		AcademicYearID: year.ID,
		SettledCount:   settled,
		SettledDate:    time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}

	s.recordAudit(ctx, opCtx, AuditActionSettle, fee.AggregateTypeAcademicYear, year.ID.String(), map[string]any{
		"settled_count": settled,
		"settled_date":  result.SettledDate.Format(time.DateOnly),
	})
	if settled > 0 {
		s.publish(ctx, fee.NewYearSettledEvent(opCtx.SchoolID, year.ID, settled, now))
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceCount, settled)
	telemetry.SetOK(span)

	s.logger.Info("Academic year settled",
		zap.String("school_id", opCtx.SchoolID.String()),
		zap.String("academic_year_id", year.ID.String()),
		zap.Int("settled_count", settled))

	return result, nil
}

// RefreshOverdue persists OVERDUE for the year's unpaid invoices past their
// due date and returns how many changed
func (s *SettlementService) RefreshOverdue(ctx context.Context, opCtx OperationContext, academicYearID uuid.UUID) (int, error) {
	ctx, span := telemetry.StartOperation(ctx, "settlement", "refresh_overdue")
	defer span.End()

	if err := opCtx.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}
	year, err := s.loadYear(ctx, s.years, opCtx.SchoolID, academicYearID)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	changed := 0
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		changed, err = refreshPastDue(ctx, repos.InvoiceRepo(), opCtx.SchoolID, &year.ID, s.clock.Now())
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	s.recordAudit(ctx, opCtx, AuditActionRefreshOverdue, fee.AggregateTypeAcademicYear, year.ID.String(), map[string]any{
		"changed": changed,
	})
	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceCount, changed)
	telemetry.SetOK(span)
	return changed, nil
}

// ExportSummary renders the year's settlement report. It returns the
// document and its content type.
func (s *SettlementService) ExportSummary(ctx context.Context, opCtx OperationContext, academicYearID uuid.UUID) ([]byte, string, error) {
	ctx, span := telemetry.StartOperation(ctx, "settlement", "export_summary")
	defer span.End()

	if s.exporter == nil {
		err := shared.NewDomainError(shared.CodeValidation, "summary export is not enabled")
		telemetry.RecordError(span, err)
		return nil, "", err
	}
	report, err := s.buildReport(ctx, opCtx, academicYearID, true)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, "", err
	}
	body, err := s.exporter.Export(ctx, *report)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, "", fmt.Errorf("failed to export settlement summary: %w", err)
	}
	telemetry.SetOK(span)
	return body, s.exporter.ContentType(), nil
}

// ExportFileExtension is the file extension of exported documents, or ""
// when export is disabled
func (s *SettlementService) ExportFileExtension() string {
	if s.exporter == nil {
		return ""
	}
	return s.exporter.FileExtension()
}

// ArchiveSummary exports the report and stores it, returning the object key
func (s *SettlementService) ArchiveSummary(ctx context.Context, opCtx OperationContext, academicYearID uuid.UUID) (string, error) {
	if s.archive == nil {
		return "", shared.NewDomainError(shared.CodeValidation, "summary archive storage is not enabled")
	}
	body, contentType, err := s.ExportSummary(ctx, opCtx, academicYearID)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("settlements/%s/%s/%s%s", opCtx.SchoolID, academicYearID,
		s.clock.Now().Format("20060102T150405Z"), s.exporter.FileExtension())
	if err := s.archive.Upload(ctx, key, body, contentType); err != nil {
		return "", fmt.Errorf("failed to archive settlement summary: %w", err)
	}

	s.recordAudit(ctx, opCtx, AuditActionArchive, fee.AggregateTypeAcademicYear, academicYearID.String(), map[string]any{
		"object_key": key,
		"size":       len(body),
	})
	return key, nil
}

// refreshPastDue re-evaluates unpaid invoices past their due date and
// persists the ones whose status changed
func refreshPastDue(ctx context.Context, repo fee.InvoiceRepository, schoolID uuid.UUID, yearID *uuid.UUID, asOf time.Time) (int, error) {
	candidates, err := repo.FindPastDueOpen(ctx, schoolID, yearID, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to load past-due invoices: %w", err)
	}
	changed := 0
	for i := range candidates {
		inv := &candidates[i]
		if !inv.RefreshStatus(asOf) {
			continue
		}
		if err := repo.UpdateStatus(ctx, inv); err != nil {
			return 0, fmt.Errorf("failed to update invoice %s: %w", inv.InvoiceNumber, err)
		}
		changed++
	}
	return changed, nil
}
