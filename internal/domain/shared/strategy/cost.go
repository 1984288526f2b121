package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AllocationMethod represents the manufacture cost allocation method
type AllocationMethod string

const (
	AllocationMethodDifficultyWeighted AllocationMethod = "difficulty_weighted"
)

// String returns the string representation of the allocation method
func (m AllocationMethod) String() string {
	return string(m)
}

// CostPoolEntry is one ledger posting contributing to a monthly cost pool
type CostPoolEntry struct {
	Date       time.Time
	Department string
	Amount     decimal.Decimal
}

// ProductionEntry is one manufacture record of a product
type ProductionEntry struct {
	ProductCode   string
	Date          time.Time
	Amount        decimal.Decimal
	PricePerPiece decimal.Decimal
}

// WeightResolver resolves the difficulty weight of a product at a given date.
// ok is false when the product has no usable weight and must be excluded.
type WeightResolver interface {
	WeightAt(productCode string, at time.Time) (weight decimal.Decimal, ok bool)
}

// AllocationInput holds everything an allocation run needs
type AllocationInput struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Department  string
	CostPool    []CostPoolEntry
	Production  []ProductionEntry
	Weights     WeightResolver
}

// AllocatedCost is the per-piece cost of one product in one month
type AllocatedCost struct {
	Month                time.Time
	ProducedAmount       decimal.Decimal
	MaterialCostPerPiece decimal.Decimal
	HandlingCostPerPiece decimal.Decimal
}

// SkippedMonth records a month that produced no allocation
type SkippedMonth struct {
	Month  time.Time
	Reason string
}

// AllocationResult contains the allocated costs keyed by product code,
// each list sorted by month descending
type AllocationResult struct {
	Method              AllocationMethod
	CostPerWeightedUnit map[time.Time]decimal.Decimal
	Costs               map[string][]AllocatedCost
	Skipped             []SkippedMonth
}

// ManufactureCostAllocationStrategy distributes monthly shared manufacturing
// cost across the products manufactured in that month
type ManufactureCostAllocationStrategy interface {
	Strategy
	// Method returns the allocation method used by this strategy
	Method() AllocationMethod
	// Allocate runs the allocation over the input window
	Allocate(ctx context.Context, input AllocationInput) (AllocationResult, error)
}

// MonthOf truncates t to the first instant of its calendar month in UTC
func MonthOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
