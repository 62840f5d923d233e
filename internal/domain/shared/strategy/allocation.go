// Package strategy defines how a payment is spread over an invoice's fee heads
package strategy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one outstanding line of an invoice a payment can be spread over.
// Lines are passed in a stable order; strategies use it to break ties.
type Line struct {
	ID      uuid.UUID
	HeadID  uuid.UUID
	Label   string
	Balance decimal.Decimal
}

// Allocation is the share of a payment applied to one line
type Allocation struct {
	LineID          uuid.UUID
	HeadID          uuid.UUID
	Label           string
	AllocatedAmount decimal.Decimal
	BalanceBefore   decimal.Decimal
	BalanceAfter    decimal.Decimal
}

// AllocationContext provides context for payment allocation
type AllocationContext struct {
	SchoolID      uuid.UUID
	InvoiceID     uuid.UUID
	PaymentAmount decimal.Decimal
	PaymentDate   time.Time
}

// AllocationResult contains the result of payment allocation.
// Allocations only lists lines that received a non-zero amount.
type AllocationResult struct {
	Allocations    []Allocation
	TotalAllocated decimal.Decimal
	Remaining      decimal.Decimal
}

// PaymentAllocationStrategy spreads a payment over the outstanding lines of one invoice
type PaymentAllocationStrategy interface {
	// Name is the key the strategy is registered and configured under
	Name() string
	Description() string
	// Allocate distributes allocCtx.PaymentAmount over lines. No allocation
	// exceeds its line's balance; amounts that cannot be placed are returned
	// as Remaining.
	Allocate(ctx context.Context, allocCtx AllocationContext, lines []Line) (AllocationResult, error)
}

// Named supplies Name and Description to strategy implementations
type Named struct {
	name        string
	description string
}

// NewNamed creates a Named
func NewNamed(name, description string) Named {
	return Named{name: name, description: description}
}

func (n Named) Name() string        { return n.name }
func (n Named) Description() string { return n.description }
