package fee

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingInput is everything needed to price one student's invoice
type PricingInput struct {
	Student            Student
	AcademicYearID     uuid.UUID
	Structures         []FeeStructure // the student's class structures for the year
	Heads              map[uuid.UUID]FeeHead
	Discounts          []Discount
	AsOf               time.Time
	AutoApplyDiscounts bool
}

// PricedInvoice holds the priced lines of one student's invoice
type PricedInvoice struct {
	Lines            []InvoiceLine
	DiscountsApplied int
	Total            decimal.Decimal
}

// PriceStudent prices every fee structure for a student: discount first,
// then the head's tax rule on the discounted amount. Lines are ordered by
// head name so invoices read the same every run.
func PriceStudent(in PricingInput) (PricedInvoice, error) {
	structures := make([]FeeStructure, len(in.Structures))
	copy(structures, in.Structures)
	sort.SliceStable(structures, func(i, j int) bool {
		hi, hj := in.Heads[structures[i].HeadID], in.Heads[structures[j].HeadID]
		if c := strings.Compare(hi.Name, hj.Name); c != 0 {
			return c < 0
		}
		return structures[i].HeadID.String() < structures[j].HeadID.String()
	})

	out := PricedInvoice{Lines: make([]InvoiceLine, 0, len(structures)), Total: decimal.Zero}
	for _, s := range structures {
		if err := s.Validate(); err != nil {
			return PricedInvoice{}, err
		}
		head, ok := in.Heads[s.HeadID]
		if !ok {
			return PricedInvoice{}, NewNotFoundError("fee head", s.HeadID.String())
		}

		discount := decimal.Zero
		if in.AutoApplyDiscounts {
			if d := ResolveDiscount(in.Discounts, in.Student.ID, head.ID, in.AcademicYearID, in.AsOf); d != nil {
				discount = d.Apply(s.Amount)
			}
		}
		if discount.IsPositive() {
			out.DiscountsApplied++
		}

		split, err := head.ComputeTax(s.Amount.Sub(discount))
		if err != nil {
			return PricedInvoice{}, err
		}

		out.Lines = append(out.Lines, InvoiceLine{
			HeadID:         head.ID,
			HeadName:       head.Name,
			GrossAmount:    s.Amount,
			DiscountAmount: discount,
			Split:          split,
		})
		out.Total = out.Total.Add(split.Total)
	}
	return out, nil
}
