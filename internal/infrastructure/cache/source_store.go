package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/domain/shared"
	"go.uber.org/zap"
)

type sourceEntry struct {
	records  any
	count    int
	loadedAt time.Time
}

type sourceSlot struct {
	ptr atomic.Pointer[sourceEntry]
}

// SourceStore holds the latest dataset of every source. Each source lives
// behind its own atomic pointer: writers swap a whole dataset, readers never
// block and never observe a partially written dataset.
type SourceStore struct {
	slots     map[catalog.SourceKey]*sourceSlot
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewSourceStore creates a store with an empty slot per known source.
// publisher receives a SourceRefreshedEvent after every Set; it may be nil.
func NewSourceStore(publisher shared.EventPublisher, logger *zap.Logger) *SourceStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	slots := make(map[catalog.SourceKey]*sourceSlot)
	for _, key := range catalog.AllSourceKeys() {
		slots[key] = &sourceSlot{}
	}
	return &SourceStore{
		slots:     slots,
		publisher: publisher,
		logger:    logger.Named("source_store"),
	}
}

// Set replaces the dataset of a source and signals that it changed.
// The records slice is copied; a zero loadedAt means now.
func Set[T any](ctx context.Context, s *SourceStore, src catalog.Source[T], records []T, loadedAt time.Time) error {
	slot, ok := s.slots[src.Key()]
	if !ok {
		return catalog.ErrUnknownSource.WithMessage("unknown source key %q", src.Key())
	}
	if loadedAt.IsZero() {
		loadedAt = time.Now()
	}

	copied := make([]T, len(records))
	copy(copied, records)
	slot.ptr.Store(&sourceEntry{records: copied, count: len(copied), loadedAt: loadedAt})

	s.logger.Debug("source dataset replaced",
		zap.String("source", src.Key().String()),
		zap.Int("records", len(copied)),
		zap.Time("loaded_at", loadedAt),
	)

	if s.publisher != nil {
		event := catalog.NewSourceRefreshedEvent(src.Key(), len(copied), loadedAt)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish source refreshed event",
				zap.String("source", src.Key().String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Load returns the current dataset of a source, empty if never populated
func Load[T any](s *SourceStore, src catalog.Source[T]) catalog.Dataset[T] {
	slot, ok := s.slots[src.Key()]
	if !ok {
		return catalog.Dataset[T]{}
	}
	entry := slot.ptr.Load()
	if entry == nil {
		return catalog.Dataset[T]{}
	}
	records, _ := entry.records.([]T)
	return catalog.Dataset[T]{Records: records, LoadedAt: entry.loadedAt}
}

// View reads every source once
func (s *SourceStore) View() catalog.SourceView {
	return catalog.SourceView{
		ErpStock:              Load(s, catalog.ErpStock),
		EshopStock:            Load(s, catalog.EshopStock),
		Attributes:            Load(s, catalog.Attributes),
		InTransit:             Load(s, catalog.InTransit),
		Reserved:              Load(s, catalog.Reserved),
		Ordered:               Load(s, catalog.Ordered),
		Planned:               Load(s, catalog.Planned),
		Lots:                  Load(s, catalog.Lots),
		EshopPrices:           Load(s, catalog.EshopPrices),
		ErpPrices:             Load(s, catalog.ErpPrices),
		SalesHistory:          Load(s, catalog.SalesHistory),
		PurchaseHistory:       Load(s, catalog.PurchaseHistory),
		ManufactureHistory:    Load(s, catalog.ManufactureHistory),
		ConsumedHistory:       Load(s, catalog.ConsumedHistory),
		StockTaking:           Load(s, catalog.StockTaking),
		ManufactureDifficulty: Load(s, catalog.ManufactureDifficulty),
		LedgerCosts:           Load(s, catalog.LedgerCosts),
	}
}

// LoadedAt returns when a source was last populated
func (s *SourceStore) LoadedAt(key catalog.SourceKey) time.Time {
	slot, ok := s.slots[key]
	if !ok {
		return time.Time{}
	}
	if entry := slot.ptr.Load(); entry != nil {
		return entry.loadedAt
	}
	return time.Time{}
}

// Status returns record counts and load times in catalogue order
func (s *SourceStore) Status() []catalog.SourceStatus {
	keys := catalog.AllSourceKeys()
	out := make([]catalog.SourceStatus, 0, len(keys))
	for _, key := range keys {
		status := catalog.SourceStatus{Key: key}
		if entry := s.slots[key].ptr.Load(); entry != nil {
			status.Records = entry.count
			status.LoadedAt = entry.loadedAt
		}
		out = append(out, status)
	}
	return out
}
