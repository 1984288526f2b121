package catalog

import (
	"context"
	"fmt"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/domain/shared"
	"go.uber.org/zap"
)

// DirtyMarker receives change signals for the merge scheduler
type DirtyMarker interface {
	MarkDirty(reason string)
}

// SourceRefreshedHandler marks the catalog dirty whenever a source dataset
// was replaced
type SourceRefreshedHandler struct {
	marker DirtyMarker
	logger *zap.Logger
}

// NewSourceRefreshedHandler creates a new SourceRefreshedHandler
func NewSourceRefreshedHandler(marker DirtyMarker, logger *zap.Logger) *SourceRefreshedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceRefreshedHandler{marker: marker, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *SourceRefreshedHandler) EventTypes() []string {
	return []string{catalog.EventTypeSourceRefreshed}
}

// Handle processes a SourceRefreshedEvent
func (h *SourceRefreshedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	refreshed, ok := event.(*catalog.SourceRefreshedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			catalog.EventTypeSourceRefreshed, event.EventType())
	}

	h.logger.Debug("source refreshed",
		zap.String("source", refreshed.Source.String()),
		zap.Int("records", refreshed.Records),
	)
	h.marker.MarkDirty("source refreshed: " + refreshed.Source.String())
	return nil
}

// DifficultyChangedHandler reloads the ManufactureDifficulty source after
// difficulty versions were edited
type DifficultyChangedHandler struct {
	refresher SourceRefresher
	logger    *zap.Logger
}

// NewDifficultyChangedHandler creates a new DifficultyChangedHandler
func NewDifficultyChangedHandler(refresher SourceRefresher, logger *zap.Logger) *DifficultyChangedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DifficultyChangedHandler{refresher: refresher, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *DifficultyChangedHandler) EventTypes() []string {
	return []string{catalog.EventTypeDifficultyChanged}
}

// Handle processes a DifficultyChangedEvent
func (h *DifficultyChangedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	changed, ok := event.(*catalog.DifficultyChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			catalog.EventTypeDifficultyChanged, event.EventType())
	}

	if err := h.refresher.TriggerManualRefresh(ctx, catalog.SourceKeyManufactureDifficulty); err != nil {
		// the periodic refresh picks the change up later
		h.logger.Warn("failed to refresh difficulty source",
			zap.String("product_code", changed.ProductCode),
			zap.Error(err),
		)
	}
	return nil
}

var (
	_ shared.EventHandler = (*SourceRefreshedHandler)(nil)
	_ shared.EventHandler = (*DifficultyChangedHandler)(nil)
)
