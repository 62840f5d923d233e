package fee

import (
	"context"
	"testing"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/feesettle/backend/internal/infrastructure/strategy/allocation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fixture is one school with a single class billed Tuition 5000,
// Transport 2000 and Library 1000 for the 2026 academic year
type fixture struct {
	store     *memStore
	catalog   memCatalog
	locker    *memLocker
	audit     *MockAuditRecorder
	publisher *recordingPublisher
	now       time.Time

	opCtx     OperationContext
	year      fee.AcademicYear
	priorYear fee.AcademicYear
	class     fee.Class
	tuition   fee.FeeHead
	transport fee.FeeHead
	library   fee.FeeHead
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	schoolID := uuid.New()
	f := &fixture{
		store:     newMemStore(),
		locker:    newMemLocker(),
		audit:     new(MockAuditRecorder),
		publisher: &recordingPublisher{},
		now:       time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC),
		opCtx: OperationContext{
			SchoolID:  schoolID,
			ActorID:   uuid.New(),
			RequestID: "req-test",
		},
	}
	f.catalog = memCatalog{store: f.store}
	f.audit.On("Record", mock.Anything, mock.Anything).Return(nil).Maybe()

	f.year = fee.AcademicYear{
		ID: uuid.New(), SchoolID: schoolID, Name: "2026-27",
		StartDate: day(2026, 4, 1), EndDate: day(2027, 3, 31), IsCurrent: true,
	}
	f.priorYear = fee.AcademicYear{
		ID: uuid.New(), SchoolID: schoolID, Name: "2025-26",
		StartDate: day(2025, 4, 1), EndDate: day(2026, 3, 31),
	}
	f.store.years[f.year.ID] = f.year
	f.store.years[f.priorYear.ID] = f.priorYear

	f.class = fee.Class{ID: uuid.New(), SchoolID: schoolID, Name: "Grade 5"}
	f.store.classes = append(f.store.classes, f.class)

	f.tuition = fee.FeeHead{ID: uuid.New(), SchoolID: schoolID, Name: "Tuition", TaxRate: decimal.Zero}
	f.transport = fee.FeeHead{ID: uuid.New(), SchoolID: schoolID, Name: "Transport", TaxRate: decimal.Zero}
	f.library = fee.FeeHead{ID: uuid.New(), SchoolID: schoolID, Name: "Library", TaxRate: decimal.Zero}
	f.store.heads = append(f.store.heads, f.tuition, f.transport, f.library)

	for head, amount := range map[uuid.UUID]string{
		f.tuition.ID:   "5000",
		f.transport.ID: "2000",
		f.library.ID:   "1000",
	} {
		f.store.structures = append(f.store.structures, fee.FeeStructure{
			ID: uuid.New(), SchoolID: schoolID, AcademicYearID: f.year.ID,
			ClassID: f.class.ID, HeadID: head, Amount: dec(amount),
		})
	}
	return f
}

func (f *fixture) addStudent(name string, classID *uuid.UUID) fee.Student {
	st := fee.Student{
		ID:              uuid.New(),
		SchoolID:        f.opCtx.SchoolID,
		AdmissionNumber: "ADM-" + name,
		FullName:        name,
		ClassID:         classID,
		IsActive:        true,
	}
	f.store.students = append(f.store.students, st)
	return st
}

func (f *fixture) options() []Option {
	return []Option{
		WithClock(ClockFunc(func() time.Time { return f.now })),
		WithAuditRecorder(f.audit),
		WithEventPublisher(f.publisher),
	}
}

func (f *fixture) scope() memScope {
	return memScope{store: f.store}
}

func (f *fixture) generationService() *GenerationService {
	return NewGenerationService(f.catalog, f.catalog, f.catalog, f.scope(), f.locker, f.options()...)
}

func (f *fixture) paymentService() *PaymentService {
	return NewPaymentService(f.scope(), f.locker, allocation.NewEvenAllocationStrategy(), f.options()...)
}

func (f *fixture) settlementService() *SettlementService {
	return NewSettlementService(f.catalog, f.catalog, f.store, f.scope(), f.options()...)
}

func (f *fixture) queryService() *InvoiceQueryService {
	return NewInvoiceQueryService(f.store, f.store, f.catalog, f.options()...)
}

// invoiceFor generates fees for one new student and returns the invoice
func (f *fixture) invoiceFor(t *testing.T, name string) *fee.Invoice {
	t.Helper()
	st := f.addStudent(name, &f.class.ID)
	_, err := f.generationService().GenerateAnnualFees(context.Background(), f.opCtx, GenerateFeesRequest{
		AcademicYearID: f.year.ID,
	})
	require.NoError(t, err)
	for _, inv := range f.store.filterInvoices(func(inv *fee.Invoice) bool { return inv.StudentID == st.ID }) {
		c := inv
		return &c
	}
	t.Fatalf("no invoice generated for %s", name)
	return nil
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) *fee.Invoice {
	t.Helper()
	inv, err := f.store.FindByIDForSchool(context.Background(), f.opCtx.SchoolID, id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

// seedOpenInvoice stores an unpaid invoice for the prior year
func (f *fixture) seedOpenInvoice(t *testing.T, studentID uuid.UUID) *fee.Invoice {
	t.Helper()
	inv, err := fee.NewInvoice(fee.NewInvoiceParams{
		SchoolID:       f.opCtx.SchoolID,
		InvoiceNumber:  "INV-2025-000099",
		StudentID:      studentID,
		AcademicYearID: f.priorYear.ID,
		ClassID:        f.class.ID,
		DueDate:        day(2025, 5, 1),
		Lines: []fee.InvoiceLine{{
			HeadID: f.tuition.ID, HeadName: "Tuition", GrossAmount: dec("4000"), DiscountAmount: decimal.Zero,
			Split: fee.TaxSplit{Base: dec("4000"), Tax: decimal.Zero, Total: dec("4000")},
		}},
		Now: day(2025, 4, 1),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.CreateBatch(context.Background(), []*fee.Invoice{inv}))
	return inv
}
