// Package strategy selects the payment allocation strategy by name
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/domain/shared/strategy"
)

// ErrStrategyExists is returned when a strategy name is registered twice
var ErrStrategyExists = errors.New("strategy already registered")

// Info describes a registered strategy for operators
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

// AllocationRegistry holds the allocation strategies a school may be
// configured with, plus the one used when none is named.
type AllocationRegistry struct {
	mu         sync.RWMutex
	strategies map[string]strategy.PaymentAllocationStrategy
	defaultKey string
}

// NewAllocationRegistry creates an empty registry
func NewAllocationRegistry() *AllocationRegistry {
	return &AllocationRegistry{
		strategies: make(map[string]strategy.PaymentAllocationStrategy),
	}
}

// Register adds s under its name
func (r *AllocationRegistry) Register(s strategy.PaymentAllocationStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[s.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrStrategyExists, s.Name())
	}
	r.strategies[s.Name()] = s
	return nil
}

// SetDefault makes a registered strategy the default
func (r *AllocationRegistry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.strategies[name]; !ok {
		return shared.NewDomainErrorf(shared.CodeNotFound, "allocation strategy %q not found", name)
	}
	r.defaultKey = name
	return nil
}

// Get returns the named strategy; an empty name means the default
func (r *AllocationRegistry) Get(name string) (strategy.PaymentAllocationStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		if r.defaultKey == "" {
			return nil, shared.NewDomainError(shared.CodeNotFound, "no default allocation strategy set")
		}
		name = r.defaultKey
	}
	s, ok := r.strategies[name]
	if !ok {
		return nil, shared.NewDomainErrorf(shared.CodeNotFound, "allocation strategy %q not found", name)
	}
	return s, nil
}

// Resolve returns the named strategy, or the default when the name is unknown
func (r *AllocationRegistry) Resolve(name string) strategy.PaymentAllocationStrategy {
	if s, err := r.Get(name); err == nil {
		return s
	}
	s, _ := r.Get("")
	return s
}

// List describes every strategy, ordered by name
func (r *AllocationRegistry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.strategies))
	for name, s := range r.strategies {
		out = append(out, Info{Name: name, Description: s.Description(), Default: name == r.defaultKey})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered names, ordered
func (r *AllocationRegistry) Names() []string {
	infos := r.List()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}
