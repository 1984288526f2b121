package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/infrastructure/cache"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = errors.New("NewCatalogMetrics: meter cannot be nil")

// CacheStatusProvider exposes the snapshot cache state sampled by the collector.
type CacheStatusProvider interface {
	Status() cache.CacheStatus
}

// CatalogMetrics records merge, refresh and cache health metrics.
type CatalogMetrics struct {
	logger *zap.Logger
	now    func() time.Time

	mergeDuration   *Histogram
	mergeTotal      *Counter
	refreshDuration *Histogram
	refreshTotal    *Counter
	refreshRecords  *Gauge
	cacheAge        *FloatGauge
	cacheGeneration *Gauge
	cacheProducts   *Gauge
	staleServed     *Counter

	mu              sync.Mutex
	lastStaleServed int64

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// NewCatalogMetrics creates every catalog instrument on meter.
func NewCatalogMetrics(meter metric.Meter, logger *zap.Logger) (*CatalogMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &CatalogMetrics{
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	var err error
	if m.mergeDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "catalog_merge_duration_seconds",
		Description: "Duration of catalog merges",
		Unit:        "s",
		Boundaries:  MergeDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.mergeTotal, err = NewCounter(meter, "catalog_merge_total", "Number of catalog merges by outcome", "{merges}"); err != nil {
		return nil, err
	}
	if m.refreshDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "catalog_source_refresh_duration_seconds",
		Description: "Duration of source refreshes",
		Unit:        "s",
		Boundaries:  FetchDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.refreshTotal, err = NewCounter(meter, "catalog_source_refresh_total", "Number of source refreshes by source and outcome", "{refreshes}"); err != nil {
		return nil, err
	}
	if m.refreshRecords, err = NewGauge(meter, "catalog_source_records", "Records installed by the last successful refresh", "{records}"); err != nil {
		return nil, err
	}
	if m.cacheAge, err = NewFloatGauge(meter, "catalog_cache_age_seconds", "Age of the current catalog snapshot", "s"); err != nil {
		return nil, err
	}
	if m.cacheGeneration, err = NewGauge(meter, "catalog_cache_generation", "Generation of the current catalog snapshot", "{generation}"); err != nil {
		return nil, err
	}
	if m.cacheProducts, err = NewGauge(meter, "catalog_cache_products", "Products in the current catalog snapshot", "{products}"); err != nil {
		return nil, err
	}
	if m.staleServed, err = NewCounter(meter, "catalog_stale_served_total", "Reads answered from the stale fallback snapshot", "{reads}"); err != nil {
		return nil, err
	}

	return m, nil
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// RecordMerge records one finished merge. Its signature matches the merge
// scheduler observer.
func (m *CatalogMetrics) RecordMerge(_ uint64, duration time.Duration, err error) {
	ctx := context.Background()
	m.mergeDuration.RecordDuration(ctx, duration, AttrOutcome.String(outcome(err)))
	m.mergeTotal.Inc(ctx, AttrOutcome.String(outcome(err)))
}

// RecordRefresh records one finished source refresh. Its signature matches
// the refresh driver observer.
func (m *CatalogMetrics) RecordRefresh(key catalog.SourceKey, duration time.Duration, records int, err error) {
	ctx := context.Background()
	source := AttrSource.String(key.String())
	m.refreshDuration.RecordDuration(ctx, duration, source, AttrOutcome.String(outcome(err)))
	m.refreshTotal.Inc(ctx, source, AttrOutcome.String(outcome(err)))
	if err == nil {
		m.refreshRecords.Record(ctx, int64(records), source)
	}
}

// Collect samples the cache state once.
func (m *CatalogMetrics) Collect(ctx context.Context, provider CacheStatusProvider) {
	status := provider.Status()

	if status.HasCurrent {
		m.cacheAge.Record(ctx, m.now().Sub(status.BuiltAt).Seconds())
		m.cacheGeneration.Record(ctx, int64(status.Generation))
		m.cacheProducts.Record(ctx, int64(status.Products))
	}

	m.mu.Lock()
	delta := status.StaleServed - m.lastStaleServed
	m.lastStaleServed = status.StaleServed
	m.mu.Unlock()
	if delta > 0 {
		m.staleServed.Add(ctx, delta)
	}
}

// StartPeriodicCollection samples the cache every interval until Stop or ctx
// cancellation. Non-blocking; only the first call starts a collector.
func (m *CatalogMetrics) StartPeriodicCollection(ctx context.Context, provider CacheStatusProvider, interval time.Duration) {
	m.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 30 * time.Second
		}
		go m.runPeriodicCollection(ctx, provider, interval)
	})
}

func (m *CatalogMetrics) runPeriodicCollection(ctx context.Context, provider CacheStatusProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Collect(ctx, provider)
	for {
		select {
		case <-m.stopChan:
			m.logger.Info("Stopping catalog metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Collect(ctx, provider)
		}
	}
}

// Stop stops the periodic collection.
func (m *CatalogMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}
