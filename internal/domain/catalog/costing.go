package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/catalogcache/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// ErrNoAllocationStrategy is returned when a calculator has no strategy
var ErrNoAllocationStrategy = errors.New("cost allocation strategy is not configured")

// CostCalculatorConfig configures the manufacture cost computation
type CostCalculatorConfig struct {
	WindowDays            int
	ManufactureDepartment string
}

// CostCalculation is the outcome of one cost allocation run
type CostCalculation struct {
	Costs   CostHistory
	Skipped []strategy.SkippedMonth
}

// ManufactureCostCalculator feeds the manufacture history, ledger costs and
// difficulty versions of a source view into an allocation strategy
type ManufactureCostCalculator struct {
	strategy strategy.ManufactureCostAllocationStrategy
	config   CostCalculatorConfig
}

// NewManufactureCostCalculator creates a new calculator
func NewManufactureCostCalculator(s strategy.ManufactureCostAllocationStrategy, cfg CostCalculatorConfig) *ManufactureCostCalculator {
	return &ManufactureCostCalculator{strategy: s, config: cfg}
}

// Calculate allocates the monthly cost pools of the window ending at now
func (c *ManufactureCostCalculator) Calculate(ctx context.Context, view SourceView, now time.Time) (CostCalculation, error) {
	if c == nil || c.strategy == nil {
		return CostCalculation{}, ErrNoAllocationStrategy
	}

	input := strategy.AllocationInput{
		WindowEnd:  now,
		Department: c.config.ManufactureDepartment,
		Weights:    NewDifficultyIndex(view.ManufactureDifficulty.Records, now),
	}
	if c.config.WindowDays > 0 {
		input.WindowStart = now.AddDate(0, 0, -c.config.WindowDays)
	}

	input.CostPool = make([]strategy.CostPoolEntry, 0, len(view.LedgerCosts.Records))
	for _, r := range view.LedgerCosts.Records {
		input.CostPool = append(input.CostPool, strategy.CostPoolEntry{
			Date:       r.Date,
			Department: r.Department,
			Amount:     r.Amount,
		})
	}

	input.Production = make([]strategy.ProductionEntry, 0, len(view.ManufactureHistory.Records))
	for _, r := range view.ManufactureHistory.Records {
		input.Production = append(input.Production, strategy.ProductionEntry{
			ProductCode:   NormalizeProductCode(r.ProductCode),
			Date:          r.Date,
			Amount:        r.Amount,
			PricePerPiece: r.PricePerPiece,
		})
	}

	result, err := c.strategy.Allocate(ctx, input)
	if err != nil {
		return CostCalculation{}, fmt.Errorf("allocate manufacture cost with %s: %w", c.strategy.Name(), err)
	}

	costs := make(CostHistory, len(result.Costs))
	for code, allocated := range result.Costs {
		history := make([]ManufactureCost, 0, len(allocated))
		for _, a := range allocated {
			history = append(history, ManufactureCost{
				Month:                a.Month,
				MaterialCostPerPiece: a.MaterialCostPerPiece,
				HandlingCostPerPiece: a.HandlingCostPerPiece,
			})
		}
		costs[code] = history
	}

	return CostCalculation{Costs: costs, Skipped: result.Skipped}, nil
}

// SalesCostPerPiece divides the monthly ledger costs of the sales department
// by the pieces sold that month. Months without sales are omitted.
func SalesCostPerPiece(ledger []LedgerCostRecord, sales []SaleRecord, department string) map[time.Time]decimal.Decimal {
	pool := make(map[time.Time]decimal.Decimal)
	for _, r := range ledger {
		if department != "" && r.Department != department {
			continue
		}
		month := strategy.MonthOf(r.Date)
		pool[month] = pool[month].Add(r.Amount)
	}

	pieces := make(map[time.Time]decimal.Decimal)
	for _, s := range sales {
		month := strategy.MonthOf(s.Date)
		pieces[month] = pieces[month].Add(s.TotalAmount())
	}

	result := make(map[time.Time]decimal.Decimal, len(pool))
	for month, cost := range pool {
		sold := pieces[month]
		if !sold.IsPositive() {
			continue
		}
		result[month] = cost.Div(sold)
	}
	return result
}
