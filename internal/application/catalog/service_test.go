package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/infrastructure/cache"
	"github.com/erp/catalogcache/internal/infrastructure/scheduler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRefresher struct {
	triggered []catalog.SourceKey
	err       error
	jobs      []scheduler.RefreshJobStatus
}

func (r *fakeRefresher) TriggerManualRefresh(ctx context.Context, key catalog.SourceKey) error {
	r.triggered = append(r.triggered, key)
	return r.err
}

func (r *fakeRefresher) JobStatus() []scheduler.RefreshJobStatus {
	return r.jobs
}

type fixedMergeStatus struct{}

func (fixedMergeStatus) State() scheduler.MergeState { return scheduler.MergeStateIdle }
func (fixedMergeStatus) Stats() scheduler.MergeStats {
	return scheduler.MergeStats{Started: 3, Completed: 2, Failed: 1, LastSeq: 3}
}

type serviceFixture struct {
	svc       *CatalogService
	store     *cache.SourceStore
	snapshots *cache.SnapshotCache
	refresher *fakeRefresher
	now       time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := cache.NewSourceStore(nil, zap.NewNop())
	snapshots := cache.NewSnapshotCache(cache.DefaultSnapshotCacheConfig(), zap.NewNop(), cache.WithClock(clock))
	refresher := &fakeRefresher{}
	svc := NewCatalogService(store, snapshots, catalog.NewMergeEngine(catalog.MergeConfig{HistoryDays: 365}),
		NewCostRecomputeGate(&countingCalculator{}, nil), zap.NewNop(),
		WithServiceClock(clock), WithSourceRefresher(refresher))

	ctx := context.Background()
	require.NoError(t, OnSourceRefreshed(ctx, svc, catalog.ErpStock, []catalog.ErpStockRecord{
		{ProductCode: "P100", ProductName: "Hand cream", ProductTypeID: 1, Stock: decimal.NewFromInt(3)},
		{ProductCode: "G200", ProductName: "Glass jar", ProductTypeID: 2, Stock: decimal.NewFromInt(40)},
		{ProductCode: "SET01", ProductName: "Gift set", ProductTypeID: 1, Stock: decimal.NewFromInt(5)},
	}))
	require.NoError(t, OnSourceRefreshed(ctx, svc, catalog.Attributes, []catalog.ProductAttributesRecord{
		{ProductCode: "P100", StockMinSetup: decimal.NewFromInt(10)},
	}))
	require.NoError(t, OnSourceRefreshed(ctx, svc, catalog.ErpPrices, []catalog.PriceRecord{
		{ProductCode: "G200", PriceWithoutVat: decimal.NewFromInt(100), PurchasePrice: decimal.NewFromInt(60)},
	}))

	return &serviceFixture{svc: svc, store: store, snapshots: snapshots, refresher: refresher, now: now}
}

func TestCatalogService_ReadBeforeMergeIsCacheEmpty(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.GetAll(context.Background())
	assert.ErrorIs(t, err, catalog.ErrCacheEmpty)
}

func TestCatalogService_RunMergeInstallsSnapshot(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.svc.RunMerge(context.Background(), 1))

	all, err := f.svc.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, uint64(1), all.Generation)
	assert.Equal(t, f.now, all.BuiltAt)

	product, err := f.svc.GetByCode(context.Background(), "G200")
	require.NoError(t, err)
	assert.Equal(t, catalog.ProductTypeGoods, product.Type)
	assert.True(t, product.SellingPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, product.Margins[catalog.CostLevelM0].Valid)
	assert.True(t, product.Margins[catalog.CostLevelM0].Value.Equal(decimal.RequireFromString("0.4")))

	set, err := f.svc.GetByCode(context.Background(), "SET01")
	require.NoError(t, err)
	assert.Equal(t, catalog.ProductTypeSet, set.Type)

	_, err = f.svc.GetByCode(context.Background(), "MISSING")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCatalogService_RunMergeRejectsOlderGeneration(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.svc.RunMerge(context.Background(), 2))

	err := f.svc.RunMerge(context.Background(), 1)
	assert.ErrorIs(t, err, catalog.ErrStaleSnapshot)
}

func TestCatalogService_RunMergeAbandonedOnCancel(t *testing.T) {
	f := newServiceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.svc.RunMerge(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, f.snapshots.Peek())
}

func TestCatalogService_Find(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.svc.RunMerge(context.Background(), 1))

	tests := []struct {
		name   string
		filter ProductFilter
		codes  []string
	}{
		{name: "all", filter: ProductFilter{}, codes: []string{"P100", "G200", "SET01"}},
		{name: "by type", filter: ProductFilter{Type: catalog.ProductTypeGoods}, codes: []string{"G200"}},
		{name: "by code prefix", filter: ProductFilter{CodePrefix: "SET"}, codes: []string{"SET01"}},
		{name: "search name", filter: ProductFilter{Search: "cream"}, codes: []string{"P100"}},
		{name: "below minimum", filter: ProductFilter{BelowMinimum: true}, codes: []string{"P100"}},
		{name: "no match", filter: ProductFilter{Type: catalog.ProductTypeMaterial}, codes: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.svc.Find(context.Background(), tt.filter)
			require.NoError(t, err)
			codes := make([]string, 0, len(result.Items))
			for _, item := range result.Items {
				codes = append(codes, item.ProductCode)
			}
			assert.ElementsMatch(t, tt.codes, codes)
			assert.Equal(t, len(tt.codes), result.Total)
		})
	}
}

func TestCatalogService_OptimisticStockAdjustment(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.ApplyOptimisticStockAdjustment(context.Background(), "P100", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, catalog.ErrCacheEmpty)

	require.NoError(t, f.svc.RunMerge(context.Background(), 1))

	product, err := f.svc.ApplyOptimisticStockAdjustment(context.Background(), "P100", decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, product.Stock.Erp.Equal(decimal.NewFromInt(25)))
	assert.False(t, product.BelowMinimum)
	assert.Equal(t, uint64(1), product.Generation)

	_, err = f.svc.ApplyOptimisticStockAdjustment(context.Background(), "NOPE", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	// the next merge wins over the adjustment
	require.NoError(t, f.svc.RunMerge(context.Background(), 2))
	product2, err := f.svc.GetByCode(context.Background(), "P100")
	require.NoError(t, err)
	assert.True(t, product2.Stock.Erp.Equal(decimal.NewFromInt(3)))
}

func TestCatalogService_ImportSourceRecords(t *testing.T) {
	f := newServiceFixture(t)

	n, err := f.svc.ImportSourceRecords(context.Background(), catalog.SourceKeyReserved,
		[]byte(`[{"product_code":"P100","amount":"2"},{"product_code":"P100","amount":"1"}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ds := cache.Load(f.store, catalog.Reserved)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, f.now, ds.LoadedAt)

	_, err = f.svc.ImportSourceRecords(context.Background(), catalog.SourceKeyReserved, []byte(`{"not":"an array"}`))
	assert.ErrorIs(t, err, catalog.ErrInvalidRecords)

	_, err = f.svc.ImportSourceRecords(context.Background(), catalog.SourceKey("Bogus"), []byte(`[]`))
	assert.ErrorIs(t, err, catalog.ErrUnknownSource)
}

func TestCatalogService_ImportersCoverEverySource(t *testing.T) {
	for _, key := range catalog.AllSourceKeys() {
		_, ok := sourceImporters[key]
		assert.True(t, ok, "missing importer for %s", key)
	}
}

func TestCatalogService_TriggerManualRefresh(t *testing.T) {
	f := newServiceFixture(t)

	require.NoError(t, f.svc.TriggerManualRefresh(context.Background(), catalog.SourceKeyLots))
	assert.Equal(t, []catalog.SourceKey{catalog.SourceKeyLots}, f.refresher.triggered)

	err := f.svc.TriggerManualRefresh(context.Background(), catalog.SourceKey("Bogus"))
	assert.ErrorIs(t, err, catalog.ErrUnknownSource)

	f.refresher.err = errors.New("lease lost")
	assert.Error(t, f.svc.TriggerManualRefresh(context.Background(), catalog.SourceKeyLots))
}

func TestCatalogService_Status(t *testing.T) {
	f := newServiceFixture(t)
	f.refresher.jobs = []scheduler.RefreshJobStatus{
		{Key: catalog.SourceKeyErpStock, Interval: time.Minute, Runs: 4, Failures: 1, LastError: "boom"},
	}
	f.svc.AttachMergeScheduler(fixedMergeStatus{})
	require.NoError(t, f.svc.RunMerge(context.Background(), 1))

	status, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status.Sources, len(catalog.AllSourceKeys()))

	byKey := make(map[catalog.SourceKey]SourceStatusResponse)
	for _, s := range status.Sources {
		byKey[s.Key] = s
	}
	erp := byKey[catalog.SourceKeyErpStock]
	assert.True(t, erp.Loaded)
	assert.Equal(t, 3, erp.Records)
	require.NotNil(t, erp.Refresh)
	assert.Equal(t, int64(4), erp.Refresh.Runs)
	assert.Equal(t, "1m0s", erp.Refresh.Interval)

	lots := byKey[catalog.SourceKeyLots]
	assert.False(t, lots.Loaded)
	assert.Nil(t, lots.LoadedAt)

	assert.True(t, status.Cache.HasCurrent)
	assert.Equal(t, uint64(1), status.Cache.Generation)
	assert.Equal(t, 3, status.Cache.Products)
	assert.Equal(t, "IDLE", status.Merge.State)
	assert.Equal(t, int64(1), status.Merge.Failed)
	assert.Nil(t, status.CostsRecomputedAt)
}

func TestCatalogService_MergeSchedulerEndToEnd(t *testing.T) {
	f := newServiceFixture(t)
	merges, err := scheduler.NewMergeScheduler(scheduler.MergeSchedulerConfig{}, f.svc.RunMerge, zap.NewNop())
	require.NoError(t, err)
	f.snapshots.SetMergeTrigger(merges)
	f.svc.AttachMergeScheduler(merges)

	require.NoError(t, merges.Start(context.Background()))
	defer func() { _ = merges.Stop(context.Background()) }()

	// first read triggers a synchronous priority merge
	product, err := f.svc.GetByCode(context.Background(), "P100")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), product.Generation)
	assert.Equal(t, int64(1), merges.Stats().Completed)
}
