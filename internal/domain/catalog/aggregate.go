package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductType classifies a product
type ProductType string

const (
	ProductTypeProduct     ProductType = "PRODUCT"
	ProductTypeGoods       ProductType = "GOODS"
	ProductTypeMaterial    ProductType = "MATERIAL"
	ProductTypeSemiProduct ProductType = "SEMI_PRODUCT"
	ProductTypeSet         ProductType = "SET"
	ProductTypeUnknown     ProductType = "UNKNOWN"
)

// NormalizeProductCode is the join key of every source: codes are compared
// with surrounding whitespace removed
func NormalizeProductCode(code string) string {
	return strings.TrimSpace(code)
}

// ProductTypeFromErpID maps the ERP product type id
func ProductTypeFromErpID(id int) ProductType {
	switch id {
	case 1:
		return ProductTypeProduct
	case 2:
		return ProductTypeGoods
	case 3:
		return ProductTypeMaterial
	case 4:
		return ProductTypeSemiProduct
	default:
		return ProductTypeUnknown
	}
}

// ParseProductType parses a product type name, ok is false for unknown names
func ParseProductType(s string) (ProductType, bool) {
	switch t := ProductType(s); t {
	case ProductTypeProduct, ProductTypeGoods, ProductTypeMaterial, ProductTypeSemiProduct, ProductTypeSet, ProductTypeUnknown:
		return t, true
	default:
		return "", false
	}
}

// StockLevels holds the current quantities of a product
type StockLevels struct {
	Erp        decimal.Decimal `json:"erp"`
	Eshop      decimal.Decimal `json:"eshop"`
	InTransit  decimal.Decimal `json:"in_transit"`
	Reserved   decimal.Decimal `json:"reserved"`
	Ordered    decimal.Decimal `json:"ordered"`
	Planned    decimal.Decimal `json:"planned"`
	AtSupplier decimal.Decimal `json:"at_supplier"`
}

// Available returns ERP stock not yet reserved
func (s StockLevels) Available() decimal.Decimal {
	return s.Erp.Sub(s.Reserved)
}

// ProductProperties holds thresholds and manufacture settings
type ProductProperties struct {
	OptimalStockDaysSetup      int             `json:"optimal_stock_days_setup"`
	StockMinSetup              decimal.Decimal `json:"stock_min_setup"`
	BatchSize                  decimal.Decimal `json:"batch_size"`
	MinimalManufactureQuantity decimal.Decimal `json:"minimal_manufacture_quantity"`
	ExpirationMonths           int             `json:"expiration_months"`
	SeasonMonths               []int           `json:"season_months"`
	HasLots                    bool            `json:"has_lots"`
	HasExpiration              bool            `json:"has_expiration"`
	MOQ                        decimal.Decimal `json:"moq"`
}

// Dimensions of a product as published by the e-shop
type Dimensions struct {
	Height decimal.Decimal `json:"height"`
	Width  decimal.Decimal `json:"width"`
	Depth  decimal.Decimal `json:"depth"`
	Volume decimal.Decimal `json:"volume"`
	Weight decimal.Decimal `json:"weight"`
}

// PriceSnapshot is a price as reported by one upstream system
type PriceSnapshot struct {
	PriceWithVat    decimal.Decimal `json:"price_with_vat"`
	PriceWithoutVat decimal.Decimal `json:"price_without_vat"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
}

// ManufactureCost is the per-piece cost of a product for one month
type ManufactureCost struct {
	Month                         time.Time       `json:"month"`
	MaterialCostPerPiece          decimal.Decimal `json:"material_cost_per_piece"`
	HandlingCostPerPiece          decimal.Decimal `json:"handling_cost_per_piece"`
	MaterialCostFromPurchasePrice decimal.Decimal `json:"material_cost_from_purchase_price"`
	SalesCostPerPiece             decimal.Decimal `json:"sales_cost_per_piece"`
}

// Total returns material plus handling cost
func (c ManufactureCost) Total() decimal.Decimal {
	return c.MaterialCostPerPiece.Add(c.HandlingCostPerPiece)
}

// CostHistory holds manufacture costs per product code, month descending
type CostHistory map[string][]ManufactureCost

// ProductAggregate is the merged view of one product across all sources.
// Aggregates are rebuilt by every merge and treated as immutable once
// published in a snapshot.
type ProductAggregate struct {
	ProductCode string            `json:"product_code"`
	ProductName string            `json:"product_name"`
	Type        ProductType       `json:"type"`
	Stock       StockLevels       `json:"stock"`
	Lots        []LotRecord       `json:"lots"`
	Properties  ProductProperties `json:"properties"`
	Location    string            `json:"location"`
	Dimensions  Dimensions        `json:"dimensions"`

	EshopPrice *PriceSnapshot `json:"eshop_price,omitempty"`
	ErpPrice   *PriceSnapshot `json:"erp_price,omitempty"`

	SalesHistory       []SaleRecord        `json:"sales_history"`
	PurchaseHistory    []PurchaseRecord    `json:"purchase_history"`
	ManufactureHistory []ManufactureRecord `json:"manufacture_history"`
	ConsumedHistory    []ConsumedRecord    `json:"consumed_history"`
	StockTakingHistory []StockTakingRecord `json:"stock_taking_history"`

	CurrentDifficulty *DifficultySetting  `json:"current_difficulty,omitempty"`
	DifficultyHistory []DifficultySetting `json:"difficulty_history"`

	ManufactureCostHistory []ManufactureCost          `json:"manufacture_cost_history"`
	Margins                map[CostLevel]MarginResult `json:"margins"`
}

// SellingPrice returns the e-shop price without VAT, falling back to the ERP price
func (p *ProductAggregate) SellingPrice() decimal.Decimal {
	if p.EshopPrice != nil && p.EshopPrice.PriceWithoutVat.IsPositive() {
		return p.EshopPrice.PriceWithoutVat
	}
	if p.ErpPrice != nil {
		return p.ErpPrice.PriceWithoutVat
	}
	return decimal.Zero
}

// PurchasePrice returns the ERP purchase price, zero when unknown
func (p *ProductAggregate) PurchasePrice() decimal.Decimal {
	if p.ErpPrice == nil {
		return decimal.Zero
	}
	return p.ErpPrice.PurchasePrice
}

// IsBelowMinimum reports whether available stock fell under the configured minimum
func (p *ProductAggregate) IsBelowMinimum() bool {
	if !p.Properties.StockMinSetup.IsPositive() {
		return false
	}
	return p.Stock.Available().LessThan(p.Properties.StockMinSetup)
}

// HasDifficulty reports whether the product takes part in cost allocation
func (p *ProductAggregate) HasDifficulty() bool {
	return p.CurrentDifficulty != nil
}
