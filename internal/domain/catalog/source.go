package catalog

import (
	"strings"
	"time"

	"github.com/erp/catalogcache/internal/domain/shared"
)

// SourceKey identifies one upstream data feed
type SourceKey string

const (
	SourceKeyErpStock              SourceKey = "ErpStock"
	SourceKeyEshopStock            SourceKey = "EshopStock"
	SourceKeyAttributes            SourceKey = "Attributes"
	SourceKeyInTransit             SourceKey = "InTransit"
	SourceKeyReserved              SourceKey = "Reserved"
	SourceKeyOrdered               SourceKey = "Ordered"
	SourceKeyPlanned               SourceKey = "Planned"
	SourceKeyLots                  SourceKey = "Lots"
	SourceKeyEshopPrices           SourceKey = "EshopPrices"
	SourceKeyErpPrices             SourceKey = "ErpPrices"
	SourceKeySalesHistory          SourceKey = "SalesHistory"
	SourceKeyPurchaseHistory       SourceKey = "PurchaseHistory"
	SourceKeyManufactureHistory    SourceKey = "ManufactureHistory"
	SourceKeyConsumedHistory       SourceKey = "ConsumedHistory"
	SourceKeyStockTaking           SourceKey = "StockTaking"
	SourceKeyManufactureDifficulty SourceKey = "ManufactureDifficulty"
	SourceKeyLedgerCosts           SourceKey = "LedgerCosts"
)

var allSourceKeys = []SourceKey{
	SourceKeyErpStock,
	SourceKeyEshopStock,
	SourceKeyAttributes,
	SourceKeyInTransit,
	SourceKeyReserved,
	SourceKeyOrdered,
	SourceKeyPlanned,
	SourceKeyLots,
	SourceKeyEshopPrices,
	SourceKeyErpPrices,
	SourceKeySalesHistory,
	SourceKeyPurchaseHistory,
	SourceKeyManufactureHistory,
	SourceKeyConsumedHistory,
	SourceKeyStockTaking,
	SourceKeyManufactureDifficulty,
	SourceKeyLedgerCosts,
}

// String returns the string representation of the source key
func (k SourceKey) String() string {
	return string(k)
}

// IsValid returns true if the key belongs to the closed source catalogue
func (k SourceKey) IsValid() bool {
	for _, key := range allSourceKeys {
		if key == k {
			return true
		}
	}
	return false
}

// AllSourceKeys returns every known source key in catalogue order
func AllSourceKeys() []SourceKey {
	keys := make([]SourceKey, len(allSourceKeys))
	copy(keys, allSourceKeys)
	return keys
}

// ParseSourceKey resolves a key case-insensitively
func ParseSourceKey(s string) (SourceKey, error) {
	for _, key := range allSourceKeys {
		if strings.EqualFold(string(key), s) {
			return key, nil
		}
	}
	return "", shared.ErrUnknownSource.WithMessage("unknown source key %q", s)
}

// Source is a typed handle binding a source key to its record shape
type Source[T any] struct {
	key SourceKey
}

// Key returns the source key of the handle
func (s Source[T]) Key() SourceKey {
	return s.key
}

// Typed source handles
var (
	ErpStock              = Source[ErpStockRecord]{key: SourceKeyErpStock}
	EshopStock            = Source[EshopStockRecord]{key: SourceKeyEshopStock}
	Attributes            = Source[ProductAttributesRecord]{key: SourceKeyAttributes}
	InTransit             = Source[QuantityRecord]{key: SourceKeyInTransit}
	Reserved              = Source[QuantityRecord]{key: SourceKeyReserved}
	Ordered               = Source[QuantityRecord]{key: SourceKeyOrdered}
	Planned               = Source[QuantityRecord]{key: SourceKeyPlanned}
	Lots                  = Source[LotRecord]{key: SourceKeyLots}
	EshopPrices           = Source[PriceRecord]{key: SourceKeyEshopPrices}
	ErpPrices             = Source[PriceRecord]{key: SourceKeyErpPrices}
	SalesHistory          = Source[SaleRecord]{key: SourceKeySalesHistory}
	PurchaseHistory       = Source[PurchaseRecord]{key: SourceKeyPurchaseHistory}
	ManufactureHistory    = Source[ManufactureRecord]{key: SourceKeyManufactureHistory}
	ConsumedHistory       = Source[ConsumedRecord]{key: SourceKeyConsumedHistory}
	StockTaking           = Source[StockTakingRecord]{key: SourceKeyStockTaking}
	ManufactureDifficulty = Source[DifficultySetting]{key: SourceKeyManufactureDifficulty}
	LedgerCosts           = Source[LedgerCostRecord]{key: SourceKeyLedgerCosts}
)

// Dataset is the latest successfully fetched content of one source.
// A zero LoadedAt means the source has never been loaded.
type Dataset[T any] struct {
	Records  []T
	LoadedAt time.Time
}

// Loaded reports whether the dataset was ever populated
func (d Dataset[T]) Loaded() bool {
	return !d.LoadedAt.IsZero()
}

// SourceView is a point-in-time read of every source dataset
type SourceView struct {
	ErpStock              Dataset[ErpStockRecord]
	EshopStock            Dataset[EshopStockRecord]
	Attributes            Dataset[ProductAttributesRecord]
	InTransit             Dataset[QuantityRecord]
	Reserved              Dataset[QuantityRecord]
	Ordered               Dataset[QuantityRecord]
	Planned               Dataset[QuantityRecord]
	Lots                  Dataset[LotRecord]
	EshopPrices           Dataset[PriceRecord]
	ErpPrices             Dataset[PriceRecord]
	SalesHistory          Dataset[SaleRecord]
	PurchaseHistory       Dataset[PurchaseRecord]
	ManufactureHistory    Dataset[ManufactureRecord]
	ConsumedHistory       Dataset[ConsumedRecord]
	StockTaking           Dataset[StockTakingRecord]
	ManufactureDifficulty Dataset[DifficultySetting]
	LedgerCosts           Dataset[LedgerCostRecord]
}

// LoadedAt returns the load timestamp of the given source inside the view
func (v SourceView) LoadedAt(key SourceKey) time.Time {
	switch key {
	case SourceKeyErpStock:
		return v.ErpStock.LoadedAt
	case SourceKeyEshopStock:
		return v.EshopStock.LoadedAt
	case SourceKeyAttributes:
		return v.Attributes.LoadedAt
	case SourceKeyInTransit:
		return v.InTransit.LoadedAt
	case SourceKeyReserved:
		return v.Reserved.LoadedAt
	case SourceKeyOrdered:
		return v.Ordered.LoadedAt
	case SourceKeyPlanned:
		return v.Planned.LoadedAt
	case SourceKeyLots:
		return v.Lots.LoadedAt
	case SourceKeyEshopPrices:
		return v.EshopPrices.LoadedAt
	case SourceKeyErpPrices:
		return v.ErpPrices.LoadedAt
	case SourceKeySalesHistory:
		return v.SalesHistory.LoadedAt
	case SourceKeyPurchaseHistory:
		return v.PurchaseHistory.LoadedAt
	case SourceKeyManufactureHistory:
		return v.ManufactureHistory.LoadedAt
	case SourceKeyConsumedHistory:
		return v.ConsumedHistory.LoadedAt
	case SourceKeyStockTaking:
		return v.StockTaking.LoadedAt
	case SourceKeyManufactureDifficulty:
		return v.ManufactureDifficulty.LoadedAt
	case SourceKeyLedgerCosts:
		return v.LedgerCosts.LoadedAt
	default:
		return time.Time{}
	}
}

// SourceStatus describes the state of one source dataset
type SourceStatus struct {
	Key      SourceKey
	Records  int
	LoadedAt time.Time
}
