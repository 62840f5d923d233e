package fee

import (
	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

func validationError(format string, args ...any) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeValidation, format, args...)
}

func notFoundError(format string, args ...any) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeNotFound, format, args...)
}

// NewInvalidRateError reports a tax rate outside [0, 100]
func NewInvalidRateError(rate decimal.Decimal) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInvalidRate, "tax rate %s is outside 0-100", rate.String())
}

// NewOverpaymentError reports a payment above the invoice's outstanding balance
func NewOverpaymentError(amount, outstanding decimal.Decimal) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeOverpayment,
		"payment %s exceeds outstanding balance %s", valueobject.FormatAmount(amount), valueobject.FormatAmount(outstanding))
}

// NewAllocationMismatchError reports explicit allocations that do not add up to the payment
func NewAllocationMismatchError(allocated, amount decimal.Decimal) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeAllocationMismatch,
		"allocations total %s but payment is %s", valueobject.FormatAmount(allocated), valueobject.FormatAmount(amount))
}

// NewOverAllocationError reports an explicit allocation above its line's balance
func NewOverAllocationError(headName string, amount, balance decimal.Decimal) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeOverAllocation,
		"allocation %s to %q exceeds its balance %s", valueobject.FormatAmount(amount), headName, valueobject.FormatAmount(balance))
}

// NewConcurrentModificationError reports a lock or version conflict. Retrying
// the whole operation is safe.
func NewConcurrentModificationError(resource string, cause error) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeConcurrentModification,
		"%s is being modified by another request, retry the operation", resource).WithCause(cause)
}

// NewNotFoundError reports a missing resource
func NewNotFoundError(resource, id string) *shared.DomainError {
	return notFoundError("%s %s not found", resource, id)
}
