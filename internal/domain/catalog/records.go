package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErpStockRecord is one row of the ERP stock feed; it defines product identity
type ErpStockRecord struct {
	ProductCode   string          `json:"product_code"`
	ProductName   string          `json:"product_name"`
	ProductTypeID int             `json:"product_type_id"`
	Stock         decimal.Decimal `json:"stock"`
	HasLots       bool            `json:"has_lots"`
	HasExpiration bool            `json:"has_expiration"`
	Volume        decimal.Decimal `json:"volume"`
	Weight        decimal.Decimal `json:"weight"`
	MOQ           decimal.Decimal `json:"moq"`
}

// EshopStockRecord is one row of the e-shop stock feed
type EshopStockRecord struct {
	ProductCode  string          `json:"product_code"`
	Stock        decimal.Decimal `json:"stock"`
	PriceWithVat decimal.Decimal `json:"price_with_vat"`
	Location     string          `json:"location"`
	Height       decimal.Decimal `json:"height"`
	Width        decimal.Decimal `json:"width"`
	Depth        decimal.Decimal `json:"depth"`
	AtSupplier   decimal.Decimal `json:"at_supplier"`
}

// ProductAttributesRecord carries stock thresholds and manufacture settings
type ProductAttributesRecord struct {
	ProductCode                string          `json:"product_code"`
	OptimalStockDaysSetup      int             `json:"optimal_stock_days_setup"`
	StockMinSetup              decimal.Decimal `json:"stock_min_setup"`
	BatchSize                  decimal.Decimal `json:"batch_size"`
	MinimalManufactureQuantity decimal.Decimal `json:"minimal_manufacture_quantity"`
	ExpirationMonths           int             `json:"expiration_months"`
	SeasonMonths               []int           `json:"season_months"`
}

// QuantityRecord is a product quantity (in transit, reserved, ordered, planned)
type QuantityRecord struct {
	ProductCode string          `json:"product_code"`
	Amount      decimal.Decimal `json:"amount"`
}

// LotRecord is the stock of one lot
type LotRecord struct {
	ProductCode string          `json:"product_code"`
	Lot         string          `json:"lot"`
	Expiration  *time.Time      `json:"expiration,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// PriceRecord is a price snapshot from the e-shop or the ERP
type PriceRecord struct {
	ProductCode     string          `json:"product_code"`
	PriceWithVat    decimal.Decimal `json:"price_with_vat"`
	PriceWithoutVat decimal.Decimal `json:"price_without_vat"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
}

// SaleRecord is the daily sales summary of a product
type SaleRecord struct {
	Date        time.Time       `json:"date"`
	ProductCode string          `json:"product_code"`
	AmountB2B   decimal.Decimal `json:"amount_b2b"`
	AmountB2C   decimal.Decimal `json:"amount_b2c"`
	SumB2B      decimal.Decimal `json:"sum_b2b"`
	SumB2C      decimal.Decimal `json:"sum_b2c"`
}

// TotalAmount returns the pieces sold across both channels
func (r SaleRecord) TotalAmount() decimal.Decimal {
	return r.AmountB2B.Add(r.AmountB2C)
}

// PurchaseRecord is one purchase document line
type PurchaseRecord struct {
	Date           time.Time       `json:"date"`
	ProductCode    string          `json:"product_code"`
	SupplierName   string          `json:"supplier_name"`
	Amount         decimal.Decimal `json:"amount"`
	PricePerPiece  decimal.Decimal `json:"price_per_piece"`
	PriceTotal     decimal.Decimal `json:"price_total"`
	DocumentNumber string          `json:"document_number"`
}

// ManufactureRecord is one finished manufacture order
type ManufactureRecord struct {
	Date           time.Time       `json:"date"`
	ProductCode    string          `json:"product_code"`
	Amount         decimal.Decimal `json:"amount"`
	PricePerPiece  decimal.Decimal `json:"price_per_piece"`
	PriceTotal     decimal.Decimal `json:"price_total"`
	DocumentNumber string          `json:"document_number"`
}

// ConsumedRecord is material consumed by manufacture
type ConsumedRecord struct {
	Date        time.Time       `json:"date"`
	ProductCode string          `json:"product_code"`
	Amount      decimal.Decimal `json:"amount"`
	ProductName string          `json:"product_name"`
}

// StockTakingRecord is one stock-take correction
type StockTakingRecord struct {
	Date        time.Time       `json:"date"`
	ProductCode string          `json:"product_code"`
	AmountOld   decimal.Decimal `json:"amount_old"`
	AmountNew   decimal.Decimal `json:"amount_new"`
	Lot         string          `json:"lot,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Difference returns the stock change applied by the stock-take
func (r StockTakingRecord) Difference() decimal.Decimal {
	return r.AmountNew.Sub(r.AmountOld)
}

// LedgerCostRecord is a ledger posting assigned to a department
type LedgerCostRecord struct {
	Date       time.Time       `json:"date"`
	Department string          `json:"department"`
	Amount     decimal.Decimal `json:"amount"`
}
