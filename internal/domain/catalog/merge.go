package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/erp/catalogcache/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// DefaultSetPrefix marks product codes of sets and bundles
const DefaultSetPrefix = "SET"

// MergeConfig configures the merge engine
type MergeConfig struct {
	// HistoryDays bounds every history list; zero keeps everything
	HistoryDays     int
	SetPrefix       string
	SalesDepartment string
}

// MergeEngine combines all source datasets into product aggregates.
// Merge is a pure function of its inputs.
type MergeEngine struct {
	config MergeConfig
}

// NewMergeEngine creates a new merge engine
func NewMergeEngine(cfg MergeConfig) *MergeEngine {
	if cfg.SetPrefix == "" {
		cfg.SetPrefix = DefaultSetPrefix
	}
	return &MergeEngine{config: cfg}
}

// Merge builds one aggregate per product of the ERP stock source. costs is
// the manufacture cost history computed by the last allocation run.
func (e *MergeEngine) Merge(view SourceView, costs CostHistory, now time.Time) ([]ProductAggregate, error) {
	if e == nil {
		return nil, ErrMergeFailed.WithMessage("merge engine is not initialized")
	}

	products, order := e.baseProducts(view.ErpStock.Records)

	attributes := firstByCode(view.Attributes.Records, func(r ProductAttributesRecord) string { return r.ProductCode })
	eshopStock := groupByCode(view.EshopStock.Records, func(r EshopStockRecord) string { return r.ProductCode })
	inTransit := sumQuantities(view.InTransit.Records)
	reserved := sumQuantities(view.Reserved.Records)
	ordered := sumQuantities(view.Ordered.Records)
	planned := sumQuantities(view.Planned.Records)
	lots := groupByCode(view.Lots.Records, func(r LotRecord) string { return r.ProductCode })
	eshopPrices := firstByCode(view.EshopPrices.Records, func(r PriceRecord) string { return r.ProductCode })
	erpPrices := firstByCode(view.ErpPrices.Records, func(r PriceRecord) string { return r.ProductCode })

	cutoff := time.Time{}
	if e.config.HistoryDays > 0 {
		cutoff = now.AddDate(0, 0, -e.config.HistoryDays)
	}
	sales := boundedHistory(view.SalesHistory.Records, cutoff,
		func(r SaleRecord) string { return r.ProductCode }, func(r SaleRecord) time.Time { return r.Date })
	purchases := boundedHistory(view.PurchaseHistory.Records, cutoff,
		func(r PurchaseRecord) string { return r.ProductCode }, func(r PurchaseRecord) time.Time { return r.Date })
	manufactures := boundedHistory(view.ManufactureHistory.Records, cutoff,
		func(r ManufactureRecord) string { return r.ProductCode }, func(r ManufactureRecord) time.Time { return r.Date })
	consumed := boundedHistory(view.ConsumedHistory.Records, cutoff,
		func(r ConsumedRecord) string { return r.ProductCode }, func(r ConsumedRecord) time.Time { return r.Date })
	stockTakings := boundedHistory(view.StockTaking.Records, cutoff,
		func(r StockTakingRecord) string { return r.ProductCode }, func(r StockTakingRecord) time.Time { return r.Date })

	difficulties := NewDifficultyIndex(view.ManufactureDifficulty.Records, now)
	salesCost := SalesCostPerPiece(view.LedgerCosts.Records, view.SalesHistory.Records, e.config.SalesDepartment)

	result := make([]ProductAggregate, 0, len(order))
	for _, code := range order {
		p := products[code]

		if attr, ok := attributes[code]; ok {
			p.Properties.OptimalStockDaysSetup = attr.OptimalStockDaysSetup
			p.Properties.StockMinSetup = attr.StockMinSetup
			p.Properties.BatchSize = attr.BatchSize
			p.Properties.MinimalManufactureQuantity = attr.MinimalManufactureQuantity
			p.Properties.ExpirationMonths = attr.ExpirationMonths
			p.Properties.SeasonMonths = attr.SeasonMonths
		}

		for i, row := range eshopStock[code] {
			p.Stock.Eshop = p.Stock.Eshop.Add(row.Stock)
			p.Stock.AtSupplier = p.Stock.AtSupplier.Add(row.AtSupplier)
			if i == 0 {
				p.Location = row.Location
				p.Dimensions.Height = row.Height
				p.Dimensions.Width = row.Width
				p.Dimensions.Depth = row.Depth
			}
		}

		p.Stock.InTransit = inTransit[code]
		p.Stock.Reserved = reserved[code]
		p.Stock.Ordered = ordered[code]
		p.Stock.Planned = planned[code]
		p.Lots = lots[code]

		if price, ok := eshopPrices[code]; ok {
			p.EshopPrice = toPriceSnapshot(price)
		} else if rows := eshopStock[code]; len(rows) > 0 && rows[0].PriceWithVat.IsPositive() {
			p.EshopPrice = &PriceSnapshot{PriceWithVat: rows[0].PriceWithVat}
		}
		if price, ok := erpPrices[code]; ok {
			p.ErpPrice = toPriceSnapshot(price)
		}

		p.SalesHistory = sales[code]
		p.PurchaseHistory = purchases[code]
		p.ManufactureHistory = manufactures[code]
		p.ConsumedHistory = consumed[code]
		p.StockTakingHistory = stockTakings[code]

		if current, ok := difficulties.Current(code); ok {
			p.CurrentDifficulty = &current
		}
		p.DifficultyHistory = difficulties.History(code)

		p.ManufactureCostHistory = stampCosts(costs[code], p.PurchasePrice(), salesCost)
		p.Margins = CalculateMargins(&p)

		result = append(result, p)
	}

	return result, nil
}

// baseProducts builds the identity list from ERP stock. Duplicate rows are
// summed into the first one.
func (e *MergeEngine) baseProducts(rows []ErpStockRecord) (map[string]ProductAggregate, []string) {
	products := make(map[string]ProductAggregate, len(rows))
	order := make([]string, 0, len(rows))

	for _, row := range rows {
		code := NormalizeProductCode(row.ProductCode)
		if code == "" {
			continue
		}
		if existing, ok := products[code]; ok {
			existing.Stock.Erp = existing.Stock.Erp.Add(row.Stock)
			products[code] = existing
			continue
		}

		productType := ProductTypeFromErpID(row.ProductTypeID)
		if strings.HasPrefix(code, e.config.SetPrefix) {
			productType = ProductTypeSet
		}

		products[code] = ProductAggregate{
			ProductCode: code,
			ProductName: row.ProductName,
			Type:        productType,
			Stock:       StockLevels{Erp: row.Stock},
			Properties: ProductProperties{
				HasLots:       row.HasLots,
				HasExpiration: row.HasExpiration,
				MOQ:           row.MOQ,
			},
			Dimensions: Dimensions{
				Volume: row.Volume,
				Weight: row.Weight,
			},
		}
		order = append(order, code)
	}

	return products, order
}

func stampCosts(costs []ManufactureCost, purchasePrice decimal.Decimal, salesCost map[time.Time]decimal.Decimal) []ManufactureCost {
	if len(costs) == 0 {
		return nil
	}
	out := make([]ManufactureCost, len(costs))
	for i, c := range costs {
		if purchasePrice.IsPositive() {
			c.MaterialCostFromPurchasePrice = purchasePrice
		}
		if perPiece, ok := salesCost[strategy.MonthOf(c.Month)]; ok {
			c.SalesCostPerPiece = perPiece
		}
		out[i] = c
	}
	return out
}

func toPriceSnapshot(r PriceRecord) *PriceSnapshot {
	return &PriceSnapshot{
		PriceWithVat:    r.PriceWithVat,
		PriceWithoutVat: r.PriceWithoutVat,
		PurchasePrice:   r.PurchasePrice,
	}
}

func sumQuantities(records []QuantityRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(records))
	for _, r := range records {
		c := NormalizeProductCode(r.ProductCode)
		if c == "" {
			continue
		}
		out[c] = out[c].Add(r.Amount)
	}
	return out
}

func firstByCode[T any](records []T, code func(T) string) map[string]T {
	out := make(map[string]T, len(records))
	for _, r := range records {
		c := NormalizeProductCode(code(r))
		if c == "" {
			continue
		}
		if _, exists := out[c]; !exists {
			out[c] = r
		}
	}
	return out
}

func groupByCode[T any](records []T, code func(T) string) map[string][]T {
	out := make(map[string][]T)
	for _, r := range records {
		c := NormalizeProductCode(code(r))
		if c == "" {
			continue
		}
		out[c] = append(out[c], r)
	}
	return out
}

// boundedHistory groups records by code, drops records older than cutoff
// and sorts each group newest first
func boundedHistory[T any](records []T, cutoff time.Time, code func(T) string, date func(T) time.Time) map[string][]T {
	out := make(map[string][]T)
	for _, r := range records {
		c := NormalizeProductCode(code(r))
		if c == "" {
			continue
		}
		if !cutoff.IsZero() && date(r).Before(cutoff) {
			continue
		}
		out[c] = append(out[c], r)
	}
	for _, group := range out {
		sort.SliceStable(group, func(i, j int) bool { return date(group[i]).After(date(group[j])) })
	}
	return out
}
