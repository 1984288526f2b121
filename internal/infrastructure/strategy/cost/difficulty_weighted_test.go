package cost

import (
	"context"
	"testing"
	"time"

	"github.com/erp/catalogcache/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticWeights map[string]decimal.Decimal

func (w staticWeights) WeightAt(code string, _ time.Time) (decimal.Decimal, bool) {
	v, ok := w[code]
	return v, ok
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func TestNewDifficultyWeightedAllocationStrategy(t *testing.T) {
	s := NewDifficultyWeightedAllocationStrategy()

	assert.NotNil(t, s)
	assert.Equal(t, "difficulty_weighted", s.Name())
	assert.Equal(t, strategy.StrategyTypeCost, s.Type())
	assert.Equal(t, strategy.AllocationMethodDifficultyWeighted, s.Method())
	assert.NotEmpty(t, s.Description())
}

func TestDifficultyWeightedAllocationStrategy_SingleProduct(t *testing.T) {
	s := NewDifficultyWeightedAllocationStrategy()

	result, err := s.Allocate(context.Background(), strategy.AllocationInput{
		Department: "MANUFACTURE",
		CostPool: []strategy.CostPoolEntry{
			{Date: day(2024, 3, 31), Department: "MANUFACTURE", Amount: decimal.NewFromInt(1000)},
		},
		Production: []strategy.ProductionEntry{
			{ProductCode: "X", Date: day(2024, 3, 12), Amount: decimal.NewFromInt(100), PricePerPiece: decimal.NewFromInt(4)},
		},
		Weights: staticWeights{"X": decimal.NewFromInt(5)},
	})
	require.NoError(t, err)

	month := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, result.CostPerWeightedUnit[month].Equal(decimal.NewFromInt(2)))

	require.Len(t, result.Costs["X"], 1)
	c := result.Costs["X"][0]
	assert.Equal(t, month, c.Month)
	assert.True(t, c.HandlingCostPerPiece.Equal(decimal.NewFromInt(10)), "handling = %s", c.HandlingCostPerPiece)
	assert.True(t, c.MaterialCostPerPiece.Equal(decimal.NewFromInt(4)))
	assert.True(t, c.ProducedAmount.Equal(decimal.NewFromInt(100)))
}

func TestDifficultyWeightedAllocationStrategy_ConservesCost(t *testing.T) {
	s := NewDifficultyWeightedAllocationStrategy()
	monthlyCost := decimal.NewFromInt(1000)

	result, err := s.Allocate(context.Background(), strategy.AllocationInput{
		CostPool: []strategy.CostPoolEntry{
			{Date: day(2024, 5, 1), Amount: decimal.NewFromInt(600)},
			{Date: day(2024, 5, 20), Amount: decimal.NewFromInt(400)},
		},
		Production: []strategy.ProductionEntry{
			{ProductCode: "A", Date: day(2024, 5, 2), Amount: decimal.NewFromInt(7), PricePerPiece: decimal.NewFromInt(3)},
			{ProductCode: "A", Date: day(2024, 5, 9), Amount: decimal.NewFromInt(13), PricePerPiece: decimal.NewFromInt(5)},
			{ProductCode: "B", Date: day(2024, 5, 15), Amount: decimal.NewFromInt(33), PricePerPiece: decimal.NewFromInt(1)},
		},
		Weights: staticWeights{"A": decimal.NewFromFloat(1.5), "B": decimal.NewFromInt(7)},
	})
	require.NoError(t, err)
	require.Len(t, result.Costs["A"], 1)
	require.Len(t, result.Costs["B"], 1)

	allocated := decimal.Zero
	for _, costs := range result.Costs {
		allocated = allocated.Add(costs[0].HandlingCostPerPiece.Mul(costs[0].ProducedAmount))
	}
	assert.True(t, allocated.Sub(monthlyCost).Abs().LessThan(decimal.New(1, -8)), "allocated %s", allocated)

	// (7*3 + 13*5) / 20
	assert.True(t, result.Costs["A"][0].MaterialCostPerPiece.Equal(decimal.NewFromFloat(4.3)))
}

func TestDifficultyWeightedAllocationStrategy_SkipsMonths(t *testing.T) {
	s := NewDifficultyWeightedAllocationStrategy()

	tests := []struct {
		name   string
		input  strategy.AllocationInput
		reason string
	}{
		{
			name: "zero weighted production",
			input: strategy.AllocationInput{
				CostPool:   []strategy.CostPoolEntry{{Date: day(2024, 1, 5), Amount: decimal.NewFromInt(500)}},
				Production: []strategy.ProductionEntry{{ProductCode: "X", Date: day(2024, 1, 6), Amount: decimal.NewFromInt(10)}},
				Weights:    staticWeights{"X": decimal.Zero},
			},
			reason: SkipReasonZeroWeightedProduction,
		},
		{
			name: "production without cost pool",
			input: strategy.AllocationInput{
				CostPool:   []strategy.CostPoolEntry{{Date: day(2024, 2, 5), Amount: decimal.NewFromInt(500)}},
				Production: []strategy.ProductionEntry{{ProductCode: "X", Date: day(2024, 1, 6), Amount: decimal.NewFromInt(10)}},
				Weights:    staticWeights{"X": decimal.NewFromInt(2)},
			},
			reason: SkipReasonNoCostPool,
		},
		{
			name: "cost pool of another department",
			input: strategy.AllocationInput{
				Department: "MANUFACTURE",
				CostPool:   []strategy.CostPoolEntry{{Date: day(2024, 1, 5), Department: "SALES", Amount: decimal.NewFromInt(500)}},
				Production: []strategy.ProductionEntry{{ProductCode: "X", Date: day(2024, 1, 6), Amount: decimal.NewFromInt(10)}},
				Weights:    staticWeights{"X": decimal.NewFromInt(2)},
			},
			reason: SkipReasonNoCostPool,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.Allocate(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Empty(t, result.Costs)
			require.Len(t, result.Skipped, 1)
			assert.Equal(t, tt.reason, result.Skipped[0].Reason)
		})
	}
}

func TestDifficultyWeightedAllocationStrategy_ExcludesProductsWithoutWeight(t *testing.T) {
	s := NewDifficultyWeightedAllocationStrategy()

	result, err := s.Allocate(context.Background(), strategy.AllocationInput{
		CostPool: []strategy.CostPoolEntry{{Date: day(2024, 4, 1), Amount: decimal.NewFromInt(300)}},
		Production: []strategy.ProductionEntry{
			{ProductCode: "X", Date: day(2024, 4, 2), Amount: decimal.NewFromInt(10)},
			{ProductCode: "NOWEIGHT", Date: day(2024, 4, 2), Amount: decimal.NewFromInt(1000)},
		},
		Weights: staticWeights{"X": decimal.NewFromInt(3)},
	})
	require.NoError(t, err)

	assert.NotContains(t, result.Costs, "NOWEIGHT")
	require.Len(t, result.Costs["X"], 1)
	assert.True(t, result.Costs["X"][0].HandlingCostPerPiece.Equal(decimal.NewFromInt(30)))
}

func TestDifficultyWeightedAllocationStrategy_OmitsZeroAmount(t *testing.T) {
	s := NewDifficultyWeightedAllocationStrategy()

	result, err := s.Allocate(context.Background(), strategy.AllocationInput{
		CostPool: []strategy.CostPoolEntry{{Date: day(2024, 4, 1), Amount: decimal.NewFromInt(300)}},
		Production: []strategy.ProductionEntry{
			{ProductCode: "X", Date: day(2024, 4, 2), Amount: decimal.NewFromInt(10)},
			{ProductCode: "Y", Date: day(2024, 4, 3), Amount: decimal.NewFromInt(5)},
			{ProductCode: "Y", Date: day(2024, 4, 4), Amount: decimal.NewFromInt(-5)},
		},
		Weights: staticWeights{"X": decimal.NewFromInt(3), "Y": decimal.NewFromInt(1)},
	})
	require.NoError(t, err)

	assert.NotContains(t, result.Costs, "Y")
	assert.Contains(t, result.Costs, "X")
}

func TestDifficultyWeightedAllocationStrategy_WindowAndOrdering(t *testing.T) {
	s := NewDifficultyWeightedAllocationStrategy()

	result, err := s.Allocate(context.Background(), strategy.AllocationInput{
		WindowStart: day(2024, 2, 1),
		WindowEnd:   day(2024, 4, 30),
		CostPool: []strategy.CostPoolEntry{
			{Date: day(2024, 1, 10), Amount: decimal.NewFromInt(100)},
			{Date: day(2024, 2, 10), Amount: decimal.NewFromInt(100)},
			{Date: day(2024, 3, 10), Amount: decimal.NewFromInt(100)},
		},
		Production: []strategy.ProductionEntry{
			{ProductCode: "X", Date: day(2024, 1, 11), Amount: decimal.NewFromInt(10)},
			{ProductCode: "X", Date: day(2024, 2, 11), Amount: decimal.NewFromInt(10)},
			{ProductCode: "X", Date: day(2024, 3, 11), Amount: decimal.NewFromInt(10)},
		},
		Weights: staticWeights{"X": decimal.NewFromInt(1)},
	})
	require.NoError(t, err)

	costs := result.Costs["X"]
	require.Len(t, costs, 2)
	assert.Equal(t, time.March, costs[0].Month.Month())
	assert.Equal(t, time.February, costs[1].Month.Month())
}

func TestDifficultyWeightedAllocationStrategy_Errors(t *testing.T) {
	s := NewDifficultyWeightedAllocationStrategy()

	_, err := s.Allocate(context.Background(), strategy.AllocationInput{})
	assert.ErrorIs(t, err, ErrNoWeightResolver)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Allocate(ctx, strategy.AllocationInput{Weights: staticWeights{}})
	assert.ErrorIs(t, err, context.Canceled)
}
