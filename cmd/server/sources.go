package main

import (
	"fmt"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/infrastructure/cache"
	"github.com/erp/catalogcache/internal/infrastructure/scheduler"
	"github.com/erp/catalogcache/internal/infrastructure/storage"
)

type exportJobBuilder func(reader *storage.S3SourceExportReader, store *cache.SourceStore, interval time.Duration) scheduler.RefreshJob

func exportJob[T any](src catalog.Source[T]) exportJobBuilder {
	return func(reader *storage.S3SourceExportReader, store *cache.SourceStore, interval time.Duration) scheduler.RefreshJob {
		return scheduler.NewRefreshJob(src, storage.ExportFetch(reader, src), store, interval)
	}
}

var exportJobs = map[catalog.SourceKey]exportJobBuilder{
	catalog.SourceKeyErpStock:              exportJob(catalog.ErpStock),
	catalog.SourceKeyEshopStock:            exportJob(catalog.EshopStock),
	catalog.SourceKeyAttributes:            exportJob(catalog.Attributes),
	catalog.SourceKeyInTransit:             exportJob(catalog.InTransit),
	catalog.SourceKeyReserved:              exportJob(catalog.Reserved),
	catalog.SourceKeyOrdered:               exportJob(catalog.Ordered),
	catalog.SourceKeyPlanned:               exportJob(catalog.Planned),
	catalog.SourceKeyLots:                  exportJob(catalog.Lots),
	catalog.SourceKeyEshopPrices:           exportJob(catalog.EshopPrices),
	catalog.SourceKeyErpPrices:             exportJob(catalog.ErpPrices),
	catalog.SourceKeySalesHistory:          exportJob(catalog.SalesHistory),
	catalog.SourceKeyPurchaseHistory:       exportJob(catalog.PurchaseHistory),
	catalog.SourceKeyManufactureHistory:    exportJob(catalog.ManufactureHistory),
	catalog.SourceKeyConsumedHistory:       exportJob(catalog.ConsumedHistory),
	catalog.SourceKeyStockTaking:           exportJob(catalog.StockTaking),
	catalog.SourceKeyManufactureDifficulty: exportJob(catalog.ManufactureDifficulty),
	catalog.SourceKeyLedgerCosts:           exportJob(catalog.LedgerCosts),
}

// newExportJobs builds refresh jobs for the configured exported sources.
// ManufactureDifficulty is owned by the database when one is configured.
func newExportJobs(names []string, reader *storage.S3SourceExportReader, store *cache.SourceStore,
	intervalFor func(string) time.Duration, skip map[catalog.SourceKey]bool) ([]scheduler.RefreshJob, error) {
	jobs := make([]scheduler.RefreshJob, 0, len(names))
	for _, name := range names {
		key, err := catalog.ParseSourceKey(name)
		if err != nil {
			return nil, fmt.Errorf("storage.exported_sources: %w", err)
		}
		if skip[key] {
			continue
		}
		build, ok := exportJobs[key]
		if !ok {
			return nil, fmt.Errorf("storage.exported_sources: no export reader for %s", key)
		}
		jobs = append(jobs, build(reader, store, intervalFor(string(key))))
	}
	return jobs, nil
}
