package strategy

import "github.com/feesettle/backend/internal/infrastructure/strategy/allocation"

// DefaultAllocation is used when no strategy is configured
const DefaultAllocation = "even"

// NewRegistryWithDefaults registers the built-in strategies and makes
// defaultAllocation the default. An empty name selects DefaultAllocation.
func NewRegistryWithDefaults(defaultAllocation string) (*AllocationRegistry, error) {
	r := NewAllocationRegistry()
	if err := r.Register(allocation.NewEvenAllocationStrategy()); err != nil {
		return nil, err
	}
	if err := r.Register(allocation.NewBalanceWeightedAllocationStrategy()); err != nil {
		return nil, err
	}

	if defaultAllocation == "" {
		defaultAllocation = DefaultAllocation
	}
	if err := r.SetDefault(defaultAllocation); err != nil {
		return nil, err
	}
	return r, nil
}
