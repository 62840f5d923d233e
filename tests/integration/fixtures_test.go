package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/lock"
	"github.com/feesettle/backend/internal/infrastructure/persistence"
	"github.com/feesettle/backend/internal/infrastructure/persistence/models"
	"github.com/feesettle/backend/internal/infrastructure/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var fixtureNow = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

// school is one tenant with a year, a class and three untaxed heads
// totalling 8000 per student
type school struct {
	ID        uuid.UUID
	Year      fee.AcademicYear
	Class     fee.Class
	Tuition   fee.FeeHead
	Transport fee.FeeHead
	Library   fee.FeeHead
	Students  []fee.Student
	db        *gorm.DB
}

func (s *school) opCtx() appfee.OperationContext {
	return appfee.OperationContext{SchoolID: s.ID, ActorID: uuid.New(), RequestID: "it-" + uuid.NewString()[:8]}
}

func newSchool(t *testing.T, db *gorm.DB, students int) *school {
	t.Helper()

	s := &school{ID: uuid.New(), db: db}
	s.Year = fee.AcademicYear{
		ID: uuid.New(), SchoolID: s.ID, Name: "2026-27",
		StartDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
		IsCurrent: true,
	}
	s.Class = fee.Class{ID: uuid.New(), SchoolID: s.ID, Name: "Grade 7"}
	s.Tuition = fee.FeeHead{ID: uuid.New(), SchoolID: s.ID, Name: "Tuition", TaxRate: decimal.Zero}
	s.Transport = fee.FeeHead{ID: uuid.New(), SchoolID: s.ID, Name: "Transport", TaxRate: decimal.Zero}
	s.Library = fee.FeeHead{ID: uuid.New(), SchoolID: s.ID, Name: "Library", TaxRate: decimal.Zero}

	require.NoError(t, db.Create(models.AcademicYearModelFromDomain(&s.Year, fixtureNow)).Error)
	require.NoError(t, db.Create(models.ClassModelFromDomain(&s.Class, fixtureNow)).Error)
	for _, h := range []*fee.FeeHead{&s.Tuition, &s.Transport, &s.Library} {
		require.NoError(t, db.Create(models.FeeHeadModelFromDomain(h, fixtureNow)).Error)
	}
	for head, amount := range map[uuid.UUID]int64{s.Tuition.ID: 5000, s.Transport.ID: 2000, s.Library.ID: 1000} {
		st := fee.FeeStructure{
			ID: uuid.New(), SchoolID: s.ID, AcademicYearID: s.Year.ID,
			ClassID: s.Class.ID, HeadID: head, Amount: decimal.NewFromInt(amount),
		}
		require.NoError(t, db.Create(models.FeeStructureModelFromDomain(&st, fixtureNow)).Error)
	}

	for i := 0; i < students; i++ {
		classID := s.Class.ID
		st := fee.Student{
			ID: uuid.New(), SchoolID: s.ID, AdmissionNumber: fmt.Sprintf("ADM-%03d", i+1),
			FullName: fmt.Sprintf("Student %d", i+1), ClassID: &classID, IsActive: true,
		}
		require.NoError(t, db.Create(models.StudentModelFromDomain(&st, fixtureNow)).Error)
		s.Students = append(s.Students, st)
	}
	return s
}

func (s *school) addDiscount(t *testing.T, student fee.Student, head *fee.FeeHead, kind fee.DiscountKind, value string) {
	t.Helper()

	d := fee.Discount{
		ID: uuid.New(), SchoolID: s.ID, StudentID: student.ID, AcademicYearID: s.Year.ID,
		IsActive: true, ValidFrom: s.Year.StartDate, ValidUntil: s.Year.EndDate,
		Kind: kind, Value: decimal.RequireFromString(value),
	}
	if head != nil {
		d.HeadID = &head.ID
	}
	require.NoError(t, s.db.Create(models.DiscountModelFromDomain(&d, fixtureNow)).Error)
}

// services is one API instance's view of the fee engine
type services struct {
	Generation  *appfee.GenerationService
	Payments    *appfee.PaymentService
	Settlements *appfee.SettlementService
	Queries     *appfee.InvoiceQueryService
}

type stackOption func(*stackConfig)

type stackConfig struct {
	locker      shared.Locker
	idempotency shared.IdempotencyStore
}

func withLocker(l shared.Locker) stackOption {
	return func(c *stackConfig) { c.locker = l }
}

func withIdempotency(s shared.IdempotencyStore) stackOption {
	return func(c *stackConfig) { c.idempotency = s }
}

func newServices(t *testing.T, db *gorm.DB, opts ...stackOption) *services {
	t.Helper()

	cfg := stackConfig{locker: lock.NewLocalLocker()}
	for _, opt := range opts {
		opt(&cfg)
	}

	registry, err := strategy.NewRegistryWithDefaults("even")
	require.NoError(t, err)

	schools := persistence.NewGormSchoolRepository(db)
	invoices := persistence.NewGormInvoiceRepository(db)
	receipts := persistence.NewGormReceiptRepository(db)
	scope := persistence.NewGormTransactionScope(db)

	serviceOpts := []appfee.Option{
		appfee.WithLogger(zap.NewNop()),
		appfee.WithClock(appfee.ClockFunc(func() time.Time { return fixtureNow })),
		appfee.WithAuditRecorder(persistence.NewGormAuditRecorder(db, zap.NewNop())),
	}

	payments := appfee.NewPaymentService(scope, cfg.locker, registry.Resolve(""), serviceOpts...)
	if cfg.idempotency != nil {
		payments.WithIdempotencyStore(cfg.idempotency)
	}

	return &services{
		Generation:  appfee.NewGenerationService(schools, schools, schools, scope, cfg.locker, serviceOpts...),
		Payments:    payments,
		Settlements: appfee.NewSettlementService(schools, schools, invoices, scope, serviceOpts...),
		Queries:     appfee.NewInvoiceQueryService(invoices, receipts, schools, serviceOpts...),
	}
}

func (svc *services) generate(t *testing.T, s *school) *appfee.GenerationResult {
	t.Helper()

	result, err := svc.Generation.GenerateAnnualFees(context.Background(), s.opCtx(), appfee.GenerateFeesRequest{
		AcademicYearID: s.Year.ID,
	})
	require.NoError(t, err)
	return result
}

func (svc *services) pay(ctx context.Context, s *school, invoiceID uuid.UUID, amount, key string) (*appfee.PaymentResult, error) {
	return svc.Payments.ProcessPayment(ctx, s.opCtx(), appfee.ProcessPaymentRequest{
		InvoiceID:      invoiceID,
		Amount:         decimal.RequireFromString(amount),
		Mode:           string(fee.PaymentModeCash),
		IdempotencyKey: key,
	})
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()

	require.Error(t, err)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "expected a domain error, got %v", err)
	require.Equal(t, code, de.Code)
}
