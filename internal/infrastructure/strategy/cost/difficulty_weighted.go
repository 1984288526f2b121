package cost

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/erp/catalogcache/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// Skip reasons reported in AllocationResult.Skipped
const (
	SkipReasonNoCostPool             = "no cost pool for month"
	SkipReasonZeroWeightedProduction = "total weighted production is not positive"
)

// ErrNoWeightResolver is returned when the input carries no weight resolver
var ErrNoWeightResolver = errors.New("weight resolver is required")

// DifficultyWeightedAllocationStrategy allocates each month's shared
// manufacturing cost in proportion to production volume times difficulty.
type DifficultyWeightedAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewDifficultyWeightedAllocationStrategy creates a new difficulty weighted strategy
func NewDifficultyWeightedAllocationStrategy() *DifficultyWeightedAllocationStrategy {
	return &DifficultyWeightedAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			string(strategy.AllocationMethodDifficultyWeighted),
			strategy.StrategyTypeCost,
			"Monthly cost pool distributed by production weighted with difficulty",
		),
	}
}

// Method returns the allocation method
func (s *DifficultyWeightedAllocationStrategy) Method() strategy.AllocationMethod {
	return strategy.AllocationMethodDifficultyWeighted
}

type productMonth struct {
	amount   decimal.Decimal
	material decimal.Decimal
	weighted decimal.Decimal
}

// Allocate runs the allocation for every month present in both the cost pool
// and the production data of the input window
func (s *DifficultyWeightedAllocationStrategy) Allocate(
	ctx context.Context,
	input strategy.AllocationInput,
) (strategy.AllocationResult, error) {
	if err := ctx.Err(); err != nil {
		return strategy.AllocationResult{}, err
	}
	if input.Weights == nil {
		return strategy.AllocationResult{}, ErrNoWeightResolver
	}

	result := strategy.AllocationResult{
		Method:              s.Method(),
		CostPerWeightedUnit: make(map[time.Time]decimal.Decimal),
		Costs:               make(map[string][]strategy.AllocatedCost),
	}

	pool := make(map[time.Time]decimal.Decimal)
	for _, entry := range input.CostPool {
		if input.Department != "" && entry.Department != input.Department {
			continue
		}
		if !inWindow(entry.Date, input.WindowStart, input.WindowEnd) {
			continue
		}
		month := strategy.MonthOf(entry.Date)
		pool[month] = pool[month].Add(entry.Amount)
	}

	production := make(map[time.Time]map[string]*productMonth)
	for _, entry := range input.Production {
		if entry.ProductCode == "" || !inWindow(entry.Date, input.WindowStart, input.WindowEnd) {
			continue
		}
		weight, ok := input.Weights.WeightAt(entry.ProductCode, entry.Date)
		if !ok {
			continue
		}
		month := strategy.MonthOf(entry.Date)
		byProduct, exists := production[month]
		if !exists {
			byProduct = make(map[string]*productMonth)
			production[month] = byProduct
		}
		pm, exists := byProduct[entry.ProductCode]
		if !exists {
			pm = &productMonth{}
			byProduct[entry.ProductCode] = pm
		}
		pm.amount = pm.amount.Add(entry.Amount)
		pm.material = pm.material.Add(entry.Amount.Mul(entry.PricePerPiece))
		pm.weighted = pm.weighted.Add(entry.Amount.Mul(weight))
	}

	months := make([]time.Time, 0, len(production))
	for month := range production {
		months = append(months, month)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].After(months[j]) })

	for _, month := range months {
		monthlyCost, ok := pool[month]
		if !ok {
			result.Skipped = append(result.Skipped, strategy.SkippedMonth{Month: month, Reason: SkipReasonNoCostPool})
			continue
		}

		totalWeighted := decimal.Zero
		for _, pm := range production[month] {
			totalWeighted = totalWeighted.Add(pm.weighted)
		}
		if !totalWeighted.IsPositive() {
			result.Skipped = append(result.Skipped, strategy.SkippedMonth{Month: month, Reason: SkipReasonZeroWeightedProduction})
			continue
		}

		costPerUnit := monthlyCost.Div(totalWeighted)
		result.CostPerWeightedUnit[month] = costPerUnit

		for code, pm := range production[month] {
			if pm.amount.IsZero() {
				continue
			}
			result.Costs[code] = append(result.Costs[code], strategy.AllocatedCost{
				Month:                month,
				ProducedAmount:       pm.amount,
				MaterialCostPerPiece: pm.material.Div(pm.amount),
				HandlingCostPerPiece: costPerUnit.Mul(pm.weighted).Div(pm.amount),
			})
		}
	}

	return result, nil
}

func inWindow(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
