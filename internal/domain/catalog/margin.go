package catalog

import (
	"github.com/shopspring/decimal"
)

// CostLevel selects which costs are deducted from the selling price
type CostLevel string

const (
	// CostLevelM0 uses the purchase price only
	CostLevelM0 CostLevel = "M0"
	// CostLevelM1 uses material cost
	CostLevelM1 CostLevel = "M1"
	// CostLevelM2 uses material and handling cost
	CostLevelM2 CostLevel = "M2"
	// CostLevelM3 adds the sales cost
	CostLevelM3 CostLevel = "M3"
)

// AllCostLevels returns the cost levels in ascending order
func AllCostLevels() []CostLevel {
	return []CostLevel{CostLevelM0, CostLevelM1, CostLevelM2, CostLevelM3}
}

// MarginResult is the margin at one cost level. Valid is false when the
// margin could not be computed.
type MarginResult struct {
	Level CostLevel       `json:"level"`
	Cost  decimal.Decimal `json:"cost"`
	Value decimal.Decimal `json:"value"`
	Valid bool            `json:"valid"`
}

// Margin computes (sellingPrice - cost) / sellingPrice rounded to 2 places.
// A selling price that is not positive yields an invalid zero result.
func Margin(level CostLevel, sellingPrice, cost decimal.Decimal) MarginResult {
	if !sellingPrice.IsPositive() {
		return MarginResult{Level: level, Cost: cost, Value: decimal.Zero, Valid: false}
	}
	value := sellingPrice.Sub(cost).Div(sellingPrice).Round(2)
	return MarginResult{Level: level, Cost: cost, Value: value, Valid: true}
}

// CalculateMargins computes the margin of every cost level for a product.
// Levels above M0 average the monthly cost history.
func CalculateMargins(p *ProductAggregate) map[CostLevel]MarginResult {
	selling := p.SellingPrice()
	margins := make(map[CostLevel]MarginResult, 4)

	if purchase := p.PurchasePrice(); purchase.IsPositive() {
		margins[CostLevelM0] = Margin(CostLevelM0, selling, purchase)
	} else {
		margins[CostLevelM0] = MarginResult{Level: CostLevelM0}
	}

	if len(p.ManufactureCostHistory) == 0 {
		for _, level := range []CostLevel{CostLevelM1, CostLevelM2, CostLevelM3} {
			margins[level] = MarginResult{Level: level}
		}
		return margins
	}

	n := decimal.NewFromInt(int64(len(p.ManufactureCostHistory)))
	material, handling, sales := decimal.Zero, decimal.Zero, decimal.Zero
	for _, c := range p.ManufactureCostHistory {
		material = material.Add(c.MaterialCostPerPiece)
		handling = handling.Add(c.HandlingCostPerPiece)
		sales = sales.Add(c.SalesCostPerPiece)
	}
	material = material.Div(n)
	handling = handling.Div(n)
	sales = sales.Div(n)

	margins[CostLevelM1] = Margin(CostLevelM1, selling, material)
	margins[CostLevelM2] = Margin(CostLevelM2, selling, material.Add(handling))
	margins[CostLevelM3] = Margin(CostLevelM3, selling, material.Add(handling).Add(sales))
	return margins
}
