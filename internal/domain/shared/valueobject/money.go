package valueobject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts are fixed-point decimals with cent precision. Helpers here are the
// only place rounding modes are chosen.

var (
	// Cent is the smallest representable amount
	Cent = decimal.New(1, -2)
	// Hundred is used for percentage arithmetic
	Hundred = decimal.NewFromInt(100)
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount cannot be negative")
	ErrAmountPrecision = errors.New("amount cannot have more than 2 decimal places")
)

// RoundCents rounds half away from zero to 2 decimal places
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FloorCents returns num/den cut to 2 decimal places without rounding the
// intermediate quotient. For the non-negative shares it is used on, that is
// the floor.
func FloorCents(num, den decimal.Decimal) decimal.Decimal {
	q, _ := num.QuoRem(den, 2)
	return q
}

// HasCentPrecision reports whether d has at most 2 significant decimal places
func HasCentPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}

// ValidateAmount checks that d is non-negative with cent precision
func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrNegativeAmount
	}
	if !HasCentPrecision(d) {
		return ErrAmountPrecision
	}
	return nil
}

// ParseAmount parses a wire amount such as "4000" or "1180.50"
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "eE") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// FormatAmount renders d with exactly two decimals
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Percentage returns part/whole*100 rounded to cents; zero when whole is zero
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return RoundCents(part.Mul(Hundred).Div(whole))
}
