package allocation

import (
	"context"

	"github.com/feesettle/backend/internal/domain/shared/strategy"
	"github.com/feesettle/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// weightFunc returns a line's weight for one distribution round given its
// current outstanding balance.
type weightFunc func(outstanding decimal.Decimal) decimal.Decimal

// distribute spreads amount over lines in rounds:
//
//  1. every active line gets floor(pool * w_i / sum(w), 2)
//  2. a share above the line's outstanding balance is clamped to it
//  3. fully paid lines leave the active set and the unplaced pool is shared
//     again among the rest
//  4. rounds stop when the pool is empty, no line is active, or a round
//     places nothing
//  5. leftover cents go one at a time to the line with the largest
//     outstanding balance (earlier line on ties)
//
// The returned slice is indexed like lines. remaining is non-zero only when
// amount exceeds the sum of balances.
func distribute(amount decimal.Decimal, lines []strategy.Line, weight weightFunc) (applied []decimal.Decimal, remaining decimal.Decimal) {
	applied = make([]decimal.Decimal, len(lines))
	for i := range applied {
		applied[i] = decimal.Zero
	}
	outstanding := func(i int) decimal.Decimal {
		return lines[i].Balance.Sub(applied[i])
	}

	active := make([]int, 0, len(lines))
	for i, l := range lines {
		if l.Balance.IsPositive() {
			active = append(active, i)
		}
	}

	pool := amount
	for pool.IsPositive() && len(active) > 0 {
		totalWeight := decimal.Zero
		for _, i := range active {
			totalWeight = totalWeight.Add(weight(outstanding(i)))
		}
		if !totalWeight.IsPositive() {
			break
		}

		placed := decimal.Zero
		next := make([]int, 0, len(active))
		for _, i := range active {
			out := outstanding(i)
			share := valueobject.FloorCents(pool.Mul(weight(out)), totalWeight)
			if share.GreaterThan(out) {
				share = out
			}
			applied[i] = applied[i].Add(share)
			placed = placed.Add(share)
			if outstanding(i).IsPositive() {
				next = append(next, i)
			}
		}

		pool = pool.Sub(placed)
		active = next
		if placed.IsZero() {
			break
		}
	}

	for pool.IsPositive() {
		best := -1
		for i := range lines {
			out := outstanding(i)
			if !out.IsPositive() {
				continue
			}
			if best < 0 || out.GreaterThan(outstanding(best)) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		step := decimal.Min(valueobject.Cent, pool, outstanding(best))
		applied[best] = applied[best].Add(step)
		pool = pool.Sub(step)
	}

	return applied, pool
}

// allocateWith runs distribute and shapes the result
func allocateWith(ctx context.Context, allocCtx strategy.AllocationContext, lines []strategy.Line, weight weightFunc) (strategy.AllocationResult, error) {
	if err := ctx.Err(); err != nil {
		return strategy.AllocationResult{}, err
	}

	applied, remaining := distribute(allocCtx.PaymentAmount, lines, weight)

	allocations := make([]strategy.Allocation, 0, len(lines))
	total := decimal.Zero
	for i, l := range lines {
		if !applied[i].IsPositive() {
			continue
		}
		allocations = append(allocations, strategy.Allocation{
			LineID:          l.ID,
			HeadID:          l.HeadID,
			Label:           l.Label,
			AllocatedAmount: applied[i],
			BalanceBefore:   l.Balance,
			BalanceAfter:    l.Balance.Sub(applied[i]),
		})
		total = total.Add(applied[i])
	}

	return strategy.AllocationResult{
		Allocations:    allocations,
		TotalAllocated: total,
		Remaining:      remaining,
	}, nil
}
