package strategy

import (
	"github.com/erp/catalogcache/internal/domain/shared/strategy"
	"github.com/erp/catalogcache/internal/infrastructure/strategy/cost"
)

// NewRegistryWithDefaults creates a new registry with the built-in
// allocation strategies registered and difficulty weighting as default.
func NewRegistryWithDefaults() (*StrategyRegistry, error) {
	r := NewStrategyRegistry()

	weighted := cost.NewDifficultyWeightedAllocationStrategy()
	if err := r.RegisterCostStrategy(weighted); err != nil {
		return nil, err
	}

	if err := r.SetDefault(strategy.StrategyTypeCost, weighted.Name()); err != nil {
		return nil, err
	}

	return r, nil
}
