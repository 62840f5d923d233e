package fee

import (
	"sort"
	"time"

	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SummaryTotals aggregates money across a set of invoices
type SummaryTotals struct {
	InvoiceCount         int
	TotalBilled          decimal.Decimal
	TotalPaid            decimal.Decimal
	TotalOutstanding     decimal.Decimal
	TotalDiscount        decimal.Decimal
	TotalRoundOff        decimal.Decimal
	CollectionPercentage decimal.Decimal
}

// ClassSummary is the collection position of one class
type ClassSummary struct {
	ClassID              uuid.UUID
	ClassName            string
	InvoiceCount         int
	TotalBilled          decimal.Decimal
	TotalPaid            decimal.Decimal
	Outstanding          decimal.Decimal
	CollectionPercentage decimal.Decimal
}

// SettlementSummary is the collection report for one academic year
type SettlementSummary struct {
	AcademicYearID  uuid.UUID
	AsOf            time.Time
	Totals          SummaryTotals
	StatusBreakdown map[InvoiceStatus]int
	Classwise       []ClassSummary
	SettledCount    int
	UnsettledCount  int
}

// Summarize aggregates invoices without modifying them. Statuses are
// evaluated as of asOf so overdue invoices are reported as such.
func Summarize(yearID uuid.UUID, invoices []Invoice, classNames map[uuid.UUID]string, asOf time.Time) SettlementSummary {
	s := SettlementSummary{
		AcademicYearID:  yearID,
		AsOf:            asOf,
		StatusBreakdown: make(map[InvoiceStatus]int, 4),
		Totals: SummaryTotals{
			TotalBilled:      decimal.Zero,
			TotalPaid:        decimal.Zero,
			TotalOutstanding: decimal.Zero,
			TotalDiscount:    decimal.Zero,
			TotalRoundOff:    decimal.Zero,
		},
	}
	for _, st := range AllInvoiceStatuses() {
		s.StatusBreakdown[st] = 0
	}

	classes := make(map[uuid.UUID]*ClassSummary)
	for idx := range invoices {
		inv := &invoices[idx]

		s.Totals.InvoiceCount++
		s.Totals.TotalBilled = s.Totals.TotalBilled.Add(inv.TotalAmount)
		s.Totals.TotalPaid = s.Totals.TotalPaid.Add(inv.PaidAmount)
		s.Totals.TotalDiscount = s.Totals.TotalDiscount.Add(inv.DiscountAmount)
		s.Totals.TotalRoundOff = s.Totals.TotalRoundOff.Add(inv.RoundOffAmount)
		s.StatusBreakdown[inv.EvaluateStatus(asOf)]++
		if inv.IsSettled {
			s.SettledCount++
		} else {
			s.UnsettledCount++
		}

		cs, ok := classes[inv.ClassID]
		if !ok {
			cs = &ClassSummary{
				ClassID:     inv.ClassID,
				ClassName:   classNames[inv.ClassID],
				TotalBilled: decimal.Zero,
				TotalPaid:   decimal.Zero,
			}
			classes[inv.ClassID] = cs
		}
		cs.InvoiceCount++
		cs.TotalBilled = cs.TotalBilled.Add(inv.TotalAmount)
		cs.TotalPaid = cs.TotalPaid.Add(inv.PaidAmount)
	}

	s.Totals.TotalOutstanding = s.Totals.TotalBilled.Sub(s.Totals.TotalPaid)
	s.Totals.CollectionPercentage = valueobject.Percentage(s.Totals.TotalPaid, s.Totals.TotalBilled)

	s.Classwise = make([]ClassSummary, 0, len(classes))
	for _, cs := range classes {
		cs.Outstanding = cs.TotalBilled.Sub(cs.TotalPaid)
		cs.CollectionPercentage = valueobject.Percentage(cs.TotalPaid, cs.TotalBilled)
		s.Classwise = append(s.Classwise, *cs)
	}
	sort.Slice(s.Classwise, func(i, j int) bool {
		a, b := s.Classwise[i], s.Classwise[j]
		if a.ClassName != b.ClassName {
			return a.ClassName < b.ClassName
		}
		return a.ClassID.String() < b.ClassID.String()
	})

	return s
}
