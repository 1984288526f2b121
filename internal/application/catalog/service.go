package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/infrastructure/cache"
	"github.com/erp/catalogcache/internal/infrastructure/scheduler"
	"github.com/erp/catalogcache/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MergeStatusProvider exposes the merge scheduler state
type MergeStatusProvider interface {
	State() scheduler.MergeState
	Stats() scheduler.MergeStats
}

// SourceRefresher runs refresh jobs on operator request
type SourceRefresher interface {
	TriggerManualRefresh(ctx context.Context, key catalog.SourceKey) error
	JobStatus() []scheduler.RefreshJobStatus
}

// CatalogService is the entry point for catalog readers and for the
// refresh boundary. It owns the merge step run by the merge scheduler.
type CatalogService struct {
	store     *cache.SourceStore
	snapshots *cache.SnapshotCache
	engine    *catalog.MergeEngine
	costs     *CostRecomputeGate
	refresher SourceRefresher
	merges    MergeStatusProvider
	logger    *zap.Logger
	clock     func() time.Time
}

// CatalogServiceOption is a functional option for the catalog service
type CatalogServiceOption func(*CatalogService)

// WithServiceClock overrides the time source used for merges
func WithServiceClock(clock func() time.Time) CatalogServiceOption {
	return func(s *CatalogService) {
		s.clock = clock
	}
}

// WithSourceRefresher sets the refresh driver used for manual refreshes
func WithSourceRefresher(refresher SourceRefresher) CatalogServiceOption {
	return func(s *CatalogService) {
		s.refresher = refresher
	}
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(
	store *cache.SourceStore,
	snapshots *cache.SnapshotCache,
	engine *catalog.MergeEngine,
	costs *CostRecomputeGate,
	logger *zap.Logger,
	opts ...CatalogServiceOption,
) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CatalogService{
		store:     store,
		snapshots: snapshots,
		engine:    engine,
		costs:     costs,
		logger:    logger.Named("catalog_service"),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachMergeScheduler connects the scheduler that runs RunMerge.
// The scheduler is created after the service because it needs RunMerge.
func (s *CatalogService) AttachMergeScheduler(merges MergeStatusProvider) {
	s.merges = merges
}

// RunMerge builds a snapshot from the current source view and installs it.
// It is the MergeFunc of the merge scheduler; seq becomes the snapshot generation.
func (s *CatalogService) RunMerge(ctx context.Context, seq uint64) (err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "catalog", "merge",
		telemetry.WithAttribute(telemetry.AttrGeneration, int64(seq)))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	now := s.clock()
	view := s.store.View()

	costs := catalog.CostHistory{}
	if s.costs != nil {
		costs, err = s.costs.Costs(ctx, view, now)
		if err != nil {
			return fmt.Errorf("compute manufacture costs: %w", err)
		}
	}

	products, err := s.engine.Merge(view, costs, now)
	if err != nil {
		return fmt.Errorf("merge sources: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("merge %d abandoned: %w", seq, err)
	}

	snapshot := catalog.NewSnapshot(seq, now, products)
	if err := s.snapshots.Replace(snapshot); err != nil {
		return err
	}

	telemetry.SetAttributes(span, telemetry.AttrRecords, snapshot.Len())
	s.logger.Info("catalog merged",
		zap.Uint64("generation", seq),
		zap.String("merge_id", snapshot.MergeID().String()),
		zap.Int("products", snapshot.Len()),
		zap.Duration("duration", s.clock().Sub(now)),
	)
	return nil
}

// GetAll returns every product of the current snapshot
func (s *CatalogService) GetAll(ctx context.Context) (*ProductListResult, error) {
	return s.Find(ctx, ProductFilter{})
}

// GetByCode returns one product
func (s *CatalogService) GetByCode(ctx context.Context, code string) (*ProductResponse, error) {
	snapshot, err := s.snapshots.Read(ctx)
	if err != nil {
		return nil, err
	}
	product, ok := snapshot.Get(code)
	if !ok {
		return nil, catalog.ErrProductNotFound.WithMessage("product %s not found in catalog", code)
	}
	return ToProductResponse(product, snapshot), nil
}

// Find returns the products matching the filter
func (s *CatalogService) Find(ctx context.Context, filter ProductFilter) (*ProductListResult, error) {
	snapshot, err := s.snapshots.Read(ctx)
	if err != nil {
		return nil, err
	}
	products := snapshot.Find(filter.Predicate())
	return &ProductListResult{
		Items:      ToProductListItems(products),
		Total:      len(products),
		Generation: snapshot.Generation(),
		BuiltAt:    snapshot.BuiltAt(),
	}, nil
}

// FindProducts returns the matching aggregates for callers that need the full model
func (s *CatalogService) FindProducts(ctx context.Context, predicate func(*catalog.ProductAggregate) bool) ([]catalog.ProductAggregate, error) {
	snapshot, err := s.snapshots.Read(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Find(predicate), nil
}

// ApplyOptimisticStockAdjustment overwrites the ERP stock of a product in the
// live snapshot until the next merge replaces it
func (s *CatalogService) ApplyOptimisticStockAdjustment(ctx context.Context, code string, quantity decimal.Decimal) (*ProductResponse, error) {
	if err := s.snapshots.ApplyOptimisticStockAdjustment(code, quantity); err != nil {
		return nil, err
	}
	s.logger.Info("optimistic stock adjustment applied",
		zap.String("product_code", code),
		zap.String("quantity", quantity.String()),
	)

	snapshot := s.snapshots.Latest()
	if snapshot == nil {
		return nil, catalog.ErrCacheEmpty
	}
	product, ok := snapshot.Get(code)
	if !ok {
		return nil, catalog.ErrProductNotFound.WithMessage("product %s not found in catalog", code)
	}
	return ToProductResponse(product, snapshot), nil
}

// OnSourceRefreshed installs an externally fetched dataset of a source
func OnSourceRefreshed[T any](ctx context.Context, s *CatalogService, src catalog.Source[T], records []T) error {
	return cache.Set(ctx, s.store, src, records, s.clock())
}

// ImportSourceRecords decodes a JSON array of records for the given source
// and installs it
func (s *CatalogService) ImportSourceRecords(ctx context.Context, key catalog.SourceKey, payload []byte) (int, error) {
	install, ok := sourceImporters[key]
	if !ok {
		return 0, catalog.ErrUnknownSource.WithMessage("unknown source key %q", key)
	}
	return install(ctx, s, payload)
}

// TriggerManualRefresh runs the refresh job of a source now
func (s *CatalogService) TriggerManualRefresh(ctx context.Context, key catalog.SourceKey) error {
	if !key.IsValid() {
		return catalog.ErrUnknownSource.WithMessage("unknown source key %q", key)
	}
	if s.refresher == nil {
		return catalog.ErrUnknownSource.WithMessage("no refresh job for source %q", key)
	}
	return s.refresher.TriggerManualRefresh(ctx, key)
}

// Status describes sources, cache and scheduler
func (s *CatalogService) Status(ctx context.Context) (*CatalogStatusResponse, error) {
	jobs := make(map[catalog.SourceKey]scheduler.RefreshJobStatus)
	if s.refresher != nil {
		for _, job := range s.refresher.JobStatus() {
			jobs[job.Key] = job
		}
	}

	resp := &CatalogStatusResponse{}
	for _, st := range s.store.Status() {
		item := SourceStatusResponse{
			Key:     st.Key,
			Records: st.Records,
			Loaded:  !st.LoadedAt.IsZero(),
		}
		if item.Loaded {
			loadedAt := st.LoadedAt
			item.LoadedAt = &loadedAt
		}
		if job, ok := jobs[st.Key]; ok {
			item.Refresh = toRefreshJobResponse(job)
		}
		resp.Sources = append(resp.Sources, item)
	}

	resp.Cache = toCacheStatusResponse(s.snapshots.Status())
	if s.merges != nil {
		resp.Merge = toMergeStatusResponse(s.merges.State(), s.merges.Stats())
	}
	if s.costs != nil {
		if lastRun := s.costs.LastRun(); !lastRun.IsZero() {
			resp.CostsRecomputedAt = &lastRun
		}
	}
	return resp, nil
}

type sourceImporter func(ctx context.Context, s *CatalogService, payload []byte) (int, error)

func importer[T any](src catalog.Source[T]) sourceImporter {
	return func(ctx context.Context, s *CatalogService, payload []byte) (int, error) {
		var records []T
		if err := json.Unmarshal(payload, &records); err != nil {
			return 0, catalog.ErrInvalidRecords.WithMessage("decode %s records: %v", src.Key(), err)
		}
		if err := OnSourceRefreshed(ctx, s, src, records); err != nil {
			return 0, err
		}
		return len(records), nil
	}
}

var sourceImporters = map[catalog.SourceKey]sourceImporter{
	catalog.SourceKeyErpStock:              importer(catalog.ErpStock),
	catalog.SourceKeyEshopStock:            importer(catalog.EshopStock),
	catalog.SourceKeyAttributes:            importer(catalog.Attributes),
	catalog.SourceKeyInTransit:             importer(catalog.InTransit),
	catalog.SourceKeyReserved:              importer(catalog.Reserved),
	catalog.SourceKeyOrdered:               importer(catalog.Ordered),
	catalog.SourceKeyPlanned:               importer(catalog.Planned),
	catalog.SourceKeyLots:                  importer(catalog.Lots),
	catalog.SourceKeyEshopPrices:           importer(catalog.EshopPrices),
	catalog.SourceKeyErpPrices:             importer(catalog.ErpPrices),
	catalog.SourceKeySalesHistory:          importer(catalog.SalesHistory),
	catalog.SourceKeyPurchaseHistory:       importer(catalog.PurchaseHistory),
	catalog.SourceKeyManufactureHistory:    importer(catalog.ManufactureHistory),
	catalog.SourceKeyConsumedHistory:       importer(catalog.ConsumedHistory),
	catalog.SourceKeyStockTaking:           importer(catalog.StockTaking),
	catalog.SourceKeyManufactureDifficulty: importer(catalog.ManufactureDifficulty),
	catalog.SourceKeyLedgerCosts:           importer(catalog.LedgerCosts),
}
