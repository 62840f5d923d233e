package persistence

import (
	"testing"
	"time"

	"github.com/feesettle/backend/internal/domain/fee"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)

// newTestDB opens a private in-memory SQLite database with the fee schema.
// One connection keeps every statement on the same in-memory database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type invoiceFixture struct {
	schoolID uuid.UUID
	yearID   uuid.UUID
	classID  uuid.UUID
	number   string
	due      time.Time
	lines    map[string]string
}

// buildInvoice creates an untaxed invoice with one line per head name.
// Lines are added in the order Tuition, Transport, Library when present.
func buildInvoice(t *testing.T, f invoiceFixture) *fee.Invoice {
	t.Helper()
	if f.due.IsZero() {
		f.due = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	}
	if f.classID == uuid.Nil {
		f.classID = uuid.New()
	}
	var lines []fee.InvoiceLine
	for _, name := range []string{"Tuition", "Transport", "Library"} {
		amount, ok := f.lines[name]
		if !ok {
			continue
		}
		a := dec(amount)
		lines = append(lines, fee.InvoiceLine{
			HeadID:      uuid.New(),
			HeadName:    name,
			GrossAmount: a,
			Split:       fee.TaxSplit{Base: a, Tax: decimal.Zero, Total: a},
		})
	}
	inv, err := fee.NewInvoice(fee.NewInvoiceParams{
		SchoolID:       f.schoolID,
		InvoiceNumber:  f.number,
		StudentID:      uuid.New(),
		AcademicYearID: f.yearID,
		ClassID:        f.classID,
		DueDate:        f.due,
		Lines:          lines,
		CreatedBy:      uuid.New(),
		Now:            testNow,
	})
	require.NoError(t, err)
	return inv
}

func standardLines() map[string]string {
	return map[string]string{"Tuition": "5000", "Transport": "2000", "Library": "1000"}
}
