package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/catalogcache/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStrategy struct {
	strategy.BaseStrategy
	input  strategy.AllocationInput
	result strategy.AllocationResult
	err    error
}

func (s *recordingStrategy) Method() strategy.AllocationMethod {
	return strategy.AllocationMethodDifficultyWeighted
}

func (s *recordingStrategy) Allocate(_ context.Context, input strategy.AllocationInput) (strategy.AllocationResult, error) {
	s.input = input
	return s.result, s.err
}

func TestManufactureCostCalculator_Calculate(t *testing.T) {
	now := date(2024, 6, 15)
	rec := &recordingStrategy{
		BaseStrategy: strategy.NewBaseStrategy("recording", strategy.StrategyTypeCost, "test"),
		result: strategy.AllocationResult{
			Costs: map[string][]strategy.AllocatedCost{
				"X": {{Month: date(2024, 5, 1), MaterialCostPerPiece: dec("4"), HandlingCostPerPiece: dec("10")}},
			},
			Skipped: []strategy.SkippedMonth{{Month: date(2024, 4, 1), Reason: "no cost pool for month"}},
		},
	}
	calc := NewManufactureCostCalculator(rec, CostCalculatorConfig{WindowDays: 90, ManufactureDepartment: "MANUFACTURE"})

	view := SourceView{
		ManufactureHistory: Dataset[ManufactureRecord]{Records: []ManufactureRecord{
			{ProductCode: "X", Date: date(2024, 5, 3), Amount: dec("100"), PricePerPiece: dec("4")},
		}},
		LedgerCosts: Dataset[LedgerCostRecord]{Records: []LedgerCostRecord{
			{Date: date(2024, 5, 31), Department: "MANUFACTURE", Amount: dec("1000")},
		}},
		ManufactureDifficulty: Dataset[DifficultySetting]{Records: []DifficultySetting{
			version("X", 5, ptrTime(date(2024, 1, 1)), nil),
		}},
	}

	result, err := calc.Calculate(context.Background(), view, now)
	require.NoError(t, err)

	assert.Equal(t, now.AddDate(0, 0, -90), rec.input.WindowStart)
	assert.Equal(t, now, rec.input.WindowEnd)
	assert.Equal(t, "MANUFACTURE", rec.input.Department)
	require.Len(t, rec.input.Production, 1)
	require.Len(t, rec.input.CostPool, 1)
	w, ok := rec.input.Weights.WeightAt("X", date(2024, 5, 3))
	require.True(t, ok)
	assert.True(t, w.Equal(decimal.NewFromInt(5)))

	require.Len(t, result.Costs["X"], 1)
	assert.True(t, result.Costs["X"][0].HandlingCostPerPiece.Equal(dec("10")))
	assert.Len(t, result.Skipped, 1)
}

func TestManufactureCostCalculator_Errors(t *testing.T) {
	var nilCalc *ManufactureCostCalculator
	_, err := nilCalc.Calculate(context.Background(), SourceView{}, time.Now())
	assert.ErrorIs(t, err, ErrNoAllocationStrategy)

	boom := errors.New("boom")
	calc := NewManufactureCostCalculator(&recordingStrategy{
		BaseStrategy: strategy.NewBaseStrategy("failing", strategy.StrategyTypeCost, "test"),
		err:          boom,
	}, CostCalculatorConfig{})
	_, err = calc.Calculate(context.Background(), SourceView{}, time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestSalesCostPerPiece(t *testing.T) {
	ledger := []LedgerCostRecord{
		{Date: date(2024, 3, 5), Department: "SALES", Amount: dec("300")},
		{Date: date(2024, 3, 25), Department: "SALES", Amount: dec("100")},
		{Date: date(2024, 3, 25), Department: "MANUFACTURE", Amount: dec("9999")},
		{Date: date(2024, 4, 25), Department: "SALES", Amount: dec("100")},
	}
	sales := []SaleRecord{
		{Date: date(2024, 3, 1), AmountB2B: dec("30"), AmountB2C: dec("10")},
		{Date: date(2024, 3, 9), AmountB2C: dec("40")},
	}

	got := SalesCostPerPiece(ledger, sales, "SALES")

	require.Len(t, got, 1, "months without sales are omitted")
	assert.True(t, got[date(2024, 3, 1)].Equal(dec("5")))
}
