package catalog

import (
	"strings"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/infrastructure/cache"
	"github.com/erp/catalogcache/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductFilter narrows a product listing
type ProductFilter struct {
	Type         catalog.ProductType `form:"type" binding:"omitempty,product_type"`
	CodePrefix   string              `form:"code_prefix" binding:"max=50"`
	Search       string              `form:"search" binding:"max=100"`
	BelowMinimum bool                `form:"below_min"`
}

// Predicate converts the filter into a snapshot predicate.
// An empty filter matches every product.
func (f ProductFilter) Predicate() func(*catalog.ProductAggregate) bool {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	return func(p *catalog.ProductAggregate) bool {
		if f.Type != "" && p.Type != f.Type {
			return false
		}
		if f.CodePrefix != "" && !strings.HasPrefix(p.ProductCode, f.CodePrefix) {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.ProductName), search) &&
			!strings.Contains(strings.ToLower(p.ProductCode), search) {
			return false
		}
		if f.BelowMinimum && !p.IsBelowMinimum() {
			return false
		}
		return true
	}
}

// ProductListItem represents a product in list responses
type ProductListItem struct {
	ProductCode  string                                     `json:"product_code"`
	ProductName  string                                     `json:"product_name"`
	Type         catalog.ProductType                        `json:"type"`
	Location     string                                     `json:"location"`
	Stock        catalog.StockLevels                        `json:"stock"`
	Available    decimal.Decimal                            `json:"available"`
	StockMin     decimal.Decimal                            `json:"stock_min"`
	BelowMinimum bool                                       `json:"below_minimum"`
	SellingPrice decimal.Decimal                            `json:"selling_price"`
	Difficulty   *decimal.Decimal                           `json:"difficulty,omitempty"`
	Margins      map[catalog.CostLevel]catalog.MarginResult `json:"margins"`
}

// ProductListResult is a product listing taken from one snapshot
type ProductListResult struct {
	Items      []ProductListItem `json:"items"`
	Total      int               `json:"total"`
	Generation uint64            `json:"generation"`
	BuiltAt    time.Time         `json:"built_at"`
}

// ProductResponse is the full aggregate of one product
type ProductResponse struct {
	catalog.ProductAggregate
	Available    decimal.Decimal `json:"available"`
	BelowMinimum bool            `json:"below_minimum"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Generation   uint64          `json:"generation"`
	BuiltAt      time.Time       `json:"built_at"`
}

// StockAdjustmentRequest sets the ERP stock of a product until the next merge
type StockAdjustmentRequest struct {
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
}

// ToProductListItem converts an aggregate to a list item
func ToProductListItem(p catalog.ProductAggregate) ProductListItem {
	item := ProductListItem{
		ProductCode:  p.ProductCode,
		ProductName:  p.ProductName,
		Type:         p.Type,
		Location:     p.Location,
		Stock:        p.Stock,
		Available:    p.Stock.Available(),
		StockMin:     p.Properties.StockMinSetup,
		BelowMinimum: p.IsBelowMinimum(),
		SellingPrice: p.SellingPrice(),
		Margins:      p.Margins,
	}
	if p.CurrentDifficulty != nil {
		value := p.CurrentDifficulty.DifficultyValue
		item.Difficulty = &value
	}
	return item
}

// ToProductListItems converts aggregates to list items
func ToProductListItems(products []catalog.ProductAggregate) []ProductListItem {
	items := make([]ProductListItem, len(products))
	for i := range products {
		items[i] = ToProductListItem(products[i])
	}
	return items
}

// ToProductResponse converts an aggregate to a detail response
func ToProductResponse(p catalog.ProductAggregate, snapshot *catalog.Snapshot) *ProductResponse {
	resp := &ProductResponse{
		ProductAggregate: p,
		Available:        p.Stock.Available(),
		BelowMinimum:     p.IsBelowMinimum(),
		SellingPrice:     p.SellingPrice(),
	}
	if snapshot != nil {
		resp.Generation = snapshot.Generation()
		resp.BuiltAt = snapshot.BuiltAt()
	}
	return resp
}

// RefreshJobResponse describes the refresh job of a source
type RefreshJobResponse struct {
	Interval      string     `json:"interval"`
	Runs          int64      `json:"runs"`
	Failures      int64      `json:"failures"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// SourceStatusResponse describes one source dataset
type SourceStatusResponse struct {
	Key      catalog.SourceKey   `json:"key"`
	Records  int                 `json:"records"`
	Loaded   bool                `json:"loaded"`
	LoadedAt *time.Time          `json:"loaded_at,omitempty"`
	Refresh  *RefreshJobResponse `json:"refresh,omitempty"`
}

// CacheStatusResponse describes the snapshot cache
type CacheStatusResponse struct {
	Generation       uint64     `json:"generation"`
	BuiltAt          *time.Time `json:"built_at,omitempty"`
	Products         int        `json:"products"`
	HasCurrent       bool       `json:"has_current"`
	HasStaleFallback bool       `json:"has_stale_fallback"`
	StaleUntil       *time.Time `json:"stale_until,omitempty"`
	StaleServed      int64      `json:"stale_served"`
	PriorityMerges   int64      `json:"priority_merges"`
	DegradedReads    int64      `json:"degraded_reads"`
}

// MergeStatusResponse describes the merge scheduler
type MergeStatusResponse struct {
	State           string     `json:"state"`
	Started         int64      `json:"started"`
	Completed       int64      `json:"completed"`
	Failed          int64      `json:"failed"`
	LastSeq         uint64     `json:"last_seq"`
	LastDurationMs  int64      `json:"last_duration_ms"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// CatalogStatusResponse is the operator view of the whole pipeline
type CatalogStatusResponse struct {
	Sources           []SourceStatusResponse `json:"sources"`
	Cache             CacheStatusResponse    `json:"cache"`
	Merge             MergeStatusResponse    `json:"merge"`
	CostsRecomputedAt *time.Time             `json:"costs_recomputed_at,omitempty"`
}

// CreateDifficultyRequest creates a new difficulty version for a product
type CreateDifficultyRequest struct {
	Difficulty decimal.Decimal `json:"difficulty" binding:"required"`
	ValidFrom  time.Time       `json:"valid_from" binding:"required"`
	ValidTo    *time.Time      `json:"valid_to"`
}

// DifficultySettingResponse represents a difficulty version in API responses
type DifficultySettingResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductCode string          `json:"product_code"`
	Difficulty  decimal.Decimal `json:"difficulty"`
	ValidFrom   *time.Time      `json:"valid_from,omitempty"`
	ValidTo     *time.Time      `json:"valid_to,omitempty"`
	Current     bool            `json:"current"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ToDifficultySettingResponse converts a difficulty version to a response
func ToDifficultySettingResponse(s catalog.DifficultySetting, current bool) DifficultySettingResponse {
	return DifficultySettingResponse{
		ID:          s.ID,
		ProductCode: s.ProductCode,
		Difficulty:  s.DifficultyValue,
		ValidFrom:   s.ValidFrom,
		ValidTo:     s.ValidTo,
		Current:     current,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toRefreshJobResponse(job scheduler.RefreshJobStatus) *RefreshJobResponse {
	return &RefreshJobResponse{
		Interval:      job.Interval.String(),
		Runs:          job.Runs,
		Failures:      job.Failures,
		LastRunAt:     optionalTime(job.LastRunAt),
		LastSuccessAt: optionalTime(job.LastSuccessAt),
		LastError:     job.LastError,
	}
}

func toCacheStatusResponse(st cache.CacheStatus) CacheStatusResponse {
	return CacheStatusResponse{
		Generation:       st.Generation,
		BuiltAt:          optionalTime(st.BuiltAt),
		Products:         st.Products,
		HasCurrent:       st.HasCurrent,
		HasStaleFallback: st.HasStaleFallback,
		StaleUntil:       optionalTime(st.StaleUntil),
		StaleServed:      st.StaleServed,
		PriorityMerges:   st.PriorityMerges,
		DegradedReads:    st.DegradedReads,
	}
}

func toMergeStatusResponse(state scheduler.MergeState, stats scheduler.MergeStats) MergeStatusResponse {
	return MergeStatusResponse{
		State:           state.String(),
		Started:         stats.Started,
		Completed:       stats.Completed,
		Failed:          stats.Failed,
		LastSeq:         stats.LastSeq,
		LastDurationMs:  stats.LastDuration.Milliseconds(),
		LastCompletedAt: optionalTime(stats.LastCompletedAt),
		LastError:       stats.LastError,
	}
}
