package fee

import (
	"strings"

	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeHead is a named category of fee with its own tax rule.
// Invoices copy the head's name onto their breakups, so later edits to a
// head only affect invoices generated afterwards.
type FeeHead struct {
	ID           uuid.UUID
	SchoolID     uuid.UUID
	Name         string
	TaxRate      decimal.Decimal
	TaxInclusive bool
}

// Validate checks the head's name and tax rate
func (h FeeHead) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return validationError("fee head name cannot be empty")
	}
	return ValidateTaxRate(h.TaxRate)
}

// ComputeTax applies the head's tax rule to amount
func (h FeeHead) ComputeTax(amount decimal.Decimal) (TaxSplit, error) {
	return ComputeTax(amount, h.TaxRate, h.TaxInclusive)
}

// FeeStructure is what one class owes for one head in one academic year
type FeeStructure struct {
	ID             uuid.UUID
	SchoolID       uuid.UUID
	AcademicYearID uuid.UUID
	ClassID        uuid.UUID
	HeadID         uuid.UUID
	Amount         decimal.Decimal
}

// Validate checks the structure amount
func (s FeeStructure) Validate() error {
	if err := valueobject.ValidateAmount(s.Amount); err != nil {
		return validationError("fee structure %s: %v", s.ID, err)
	}
	return nil
}
