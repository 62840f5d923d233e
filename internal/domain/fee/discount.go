package fee

import (
	"bytes"
	"sort"
	"time"

	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountKind is how a discount value is interpreted
type DiscountKind string

const (
	DiscountKindPercent DiscountKind = "PERCENT"
	DiscountKindFixed   DiscountKind = "FIXED"
)

// IsValid returns true if the kind is known
func (k DiscountKind) IsValid() bool {
	return k == DiscountKindPercent || k == DiscountKindFixed
}

// Discount is a student concession for one academic year. A nil HeadID
// applies to every fee head.
type Discount struct {
	ID             uuid.UUID
	SchoolID       uuid.UUID
	StudentID      uuid.UUID
	AcademicYearID uuid.UUID
	HeadID         *uuid.UUID
	IsActive       bool
	ValidFrom      time.Time
	ValidUntil     time.Time
	Kind           DiscountKind
	Value          decimal.Decimal
}

// Validate checks kind, value and validity window
func (d Discount) Validate() error {
	if !d.Kind.IsValid() {
		return validationError("discount %s has unknown kind %q", d.ID, d.Kind)
	}
	if d.Value.IsNegative() {
		return validationError("discount %s value cannot be negative", d.ID)
	}
	if d.Kind == DiscountKindFixed && !valueobject.HasCentPrecision(d.Value) {
		return validationError("discount %s fixed value has sub-cent precision", d.ID)
	}
	if d.ValidUntil.Before(d.ValidFrom) {
		return validationError("discount %s ends before it starts", d.ID)
	}
	return nil
}

// IsHeadSpecific reports whether the discount targets one fee head
func (d Discount) IsHeadSpecific() bool {
	return d.HeadID != nil
}

// Matches reports whether the discount applies to student/head/year on asOf.
// Validity bounds are inclusive calendar days.
func (d Discount) Matches(studentID, headID, yearID uuid.UUID, asOf time.Time) bool {
	if !d.IsActive || d.StudentID != studentID || d.AcademicYearID != yearID {
		return false
	}
	if d.HeadID != nil && *d.HeadID != headID {
		return false
	}
	on := dateOf(asOf)
	return !on.Before(dateOf(d.ValidFrom)) && !on.After(dateOf(d.ValidUntil))
}

// Apply returns the discount amount for amount. It never exceeds amount.
func (d Discount) Apply(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	var off decimal.Decimal
	switch d.Kind {
	case DiscountKindPercent:
		off = valueobject.RoundCents(amount.Mul(d.Value).Div(valueobject.Hundred))
	case DiscountKindFixed:
		off = d.Value
	default:
		return decimal.Zero
	}
	if off.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(off, amount)
}

// ResolveDiscount picks the discount that applies to student/head/year on asOf.
//
// Ordering: a head-specific discount beats a wildcard one, then the earliest
// ValidFrom wins, then the lowest ID. Returns nil when nothing matches.
func ResolveDiscount(discounts []Discount, studentID, headID, yearID uuid.UUID, asOf time.Time) *Discount {
	candidates := make([]Discount, 0, 2)
	for _, d := range discounts {
		if d.Matches(studentID, headID, yearID, asOf) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.IsHeadSpecific() != b.IsHeadSpecific() {
			return a.IsHeadSpecific()
		}
		if !a.ValidFrom.Equal(b.ValidFrom) {
			return a.ValidFrom.Before(b.ValidFrom)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})

	chosen := candidates[0]
	return &chosen
}
