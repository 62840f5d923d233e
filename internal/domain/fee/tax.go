package fee

import (
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// TaxSplit is a fee amount split into its pre-tax base and tax.
// Base + Tax == Total always holds exactly.
type TaxSplit struct {
	Base  decimal.Decimal
	Tax   decimal.Decimal
	Total decimal.Decimal
}

// ValidateTaxRate checks rate is within [0, 100]
func ValidateTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(valueobject.Hundred) {
		return NewInvalidRateError(rate)
	}
	return nil
}

// ComputeTax splits amount by rate.
//
// Exclusive: tax = round(amount*rate/100), total = amount + tax.
// Inclusive: total = amount, base = round(total/(1+rate/100)), tax = total - base.
// Tax is never rounded on its own in inclusive mode.
func ComputeTax(amount, rate decimal.Decimal, inclusive bool) (TaxSplit, error) {
	if amount.IsNegative() {
		return TaxSplit{}, validationError("taxable amount %s cannot be negative", amount.String())
	}
	if err := ValidateTaxRate(rate); err != nil {
		return TaxSplit{}, err
	}

	if rate.IsZero() {
		return TaxSplit{Base: amount, Tax: decimal.Zero, Total: amount}, nil
	}

	if !inclusive {
		tax := valueobject.RoundCents(amount.Mul(rate).Div(valueobject.Hundred))
		return TaxSplit{Base: amount, Tax: tax, Total: amount.Add(tax)}, nil
	}

	divisor := decimal.NewFromInt(1).Add(rate.Div(valueobject.Hundred))
	base := valueobject.RoundCents(amount.Div(divisor))
	return TaxSplit{Base: base, Tax: amount.Sub(base), Total: amount}, nil
}
