package allocation

import (
	"context"

	"github.com/feesettle/backend/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// EvenAllocationStrategy gives every outstanding line an equal share of the
// payment, capped at the line's balance. Whatever a capped line cannot take
// is shared again among the lines still owing.
type EvenAllocationStrategy struct {
	strategy.Named
}

// NewEvenAllocationStrategy creates a new even allocation strategy
func NewEvenAllocationStrategy() *EvenAllocationStrategy {
	return &EvenAllocationStrategy{
		Named: strategy.NewNamed(
			"even",
			"Split payments equally across outstanding fee heads, capped at each balance",
		),
	}
}

// Allocate distributes the payment across lines
func (s *EvenAllocationStrategy) Allocate(
	ctx context.Context,
	allocCtx strategy.AllocationContext,
	lines []strategy.Line,
) (strategy.AllocationResult, error) {
	return allocateWith(ctx, allocCtx, lines, func(decimal.Decimal) decimal.Decimal {
		return decimal.NewFromInt(1)
	})
}
