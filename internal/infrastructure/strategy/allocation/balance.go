package allocation

import (
	"context"

	"github.com/feesettle/backend/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// BalanceWeightedAllocationStrategy splits a payment in proportion to each
// line's current outstanding balance.
type BalanceWeightedAllocationStrategy struct {
	strategy.Named
}

// NewBalanceWeightedAllocationStrategy creates a new balance-weighted allocation strategy
func NewBalanceWeightedAllocationStrategy() *BalanceWeightedAllocationStrategy {
	return &BalanceWeightedAllocationStrategy{
		Named: strategy.NewNamed(
			"balance",
			"Split payments across outstanding fee heads in proportion to their balances",
		),
	}
}

// Allocate distributes the payment across lines
func (s *BalanceWeightedAllocationStrategy) Allocate(
	ctx context.Context,
	allocCtx strategy.AllocationContext,
	lines []strategy.Line,
) (strategy.AllocationResult, error) {
	return allocateWith(ctx, allocCtx, lines, func(outstanding decimal.Decimal) decimal.Decimal {
		return outstanding
	})
}
