package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMargin(t *testing.T) {
	tests := []struct {
		name      string
		selling   decimal.Decimal
		cost      decimal.Decimal
		wantValid bool
		want      decimal.Decimal
	}{
		{"regular", dec("100"), dec("60"), true, dec("0.4")},
		{"rounded", dec("3"), dec("1"), true, dec("0.67")},
		{"negative margin", dec("50"), dec("75"), true, dec("-0.5")},
		{"zero selling price", decimal.Zero, dec("10"), false, decimal.Zero},
		{"negative selling price", dec("-1"), dec("10"), false, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Margin(CostLevelM1, tt.selling, tt.cost)
			assert.Equal(t, tt.wantValid, m.Valid)
			assert.True(t, tt.want.Equal(m.Value), "got %s", m.Value)
			assert.Equal(t, CostLevelM1, m.Level)
		})
	}
}

func TestCalculateMargins(t *testing.T) {
	p := &ProductAggregate{
		EshopPrice: &PriceSnapshot{PriceWithoutVat: dec("200")},
		ErpPrice:   &PriceSnapshot{PriceWithoutVat: dec("180"), PurchasePrice: dec("100")},
		ManufactureCostHistory: []ManufactureCost{
			{MaterialCostPerPiece: dec("40"), HandlingCostPerPiece: dec("20"), SalesCostPerPiece: dec("10")},
			{MaterialCostPerPiece: dec("60"), HandlingCostPerPiece: dec("40"), SalesCostPerPiece: dec("30")},
		},
	}

	margins := CalculateMargins(p)

	assert.True(t, margins[CostLevelM0].Value.Equal(dec("0.5")))
	assert.True(t, margins[CostLevelM1].Value.Equal(dec("0.75")))
	assert.True(t, margins[CostLevelM2].Value.Equal(dec("0.6")))
	assert.True(t, margins[CostLevelM3].Value.Equal(dec("0.5")))
	for _, level := range AllCostLevels() {
		assert.True(t, margins[level].Valid, "level %s", level)
	}
}

func TestCalculateMargins_FallbacksAndGaps(t *testing.T) {
	t.Run("erp price used when e-shop price missing", func(t *testing.T) {
		p := &ProductAggregate{ErpPrice: &PriceSnapshot{PriceWithoutVat: dec("50"), PurchasePrice: dec("25")}}
		assert.True(t, p.SellingPrice().Equal(dec("50")))

		margins := CalculateMargins(p)
		assert.True(t, margins[CostLevelM0].Valid)
		assert.False(t, margins[CostLevelM1].Valid, "no cost history")
		assert.False(t, margins[CostLevelM3].Valid)
	})

	t.Run("no selling price", func(t *testing.T) {
		p := &ProductAggregate{
			ErpPrice:               &PriceSnapshot{PurchasePrice: dec("25")},
			ManufactureCostHistory: []ManufactureCost{{MaterialCostPerPiece: dec("1")}},
		}
		for _, m := range CalculateMargins(p) {
			assert.False(t, m.Valid)
			assert.True(t, m.Value.IsZero())
		}
	})
}
