package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingMarker struct {
	reasons []string
}

func (m *recordingMarker) MarkDirty(reason string) {
	m.reasons = append(m.reasons, reason)
}

func TestSourceRefreshedHandler(t *testing.T) {
	marker := &recordingMarker{}
	h := NewSourceRefreshedHandler(marker, zap.NewNop())
	assert.Equal(t, []string{catalog.EventTypeSourceRefreshed}, h.EventTypes())

	event := catalog.NewSourceRefreshedEvent(catalog.SourceKeyLots, 12, time.Now())
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, []string{"source refreshed: Lots"}, marker.reasons)

	wrong := catalog.NewDifficultyChangedEvent("P1", uuid.New(), catalog.DifficultyChangeCreated)
	assert.Error(t, h.Handle(context.Background(), wrong))
	assert.Len(t, marker.reasons, 1)
}

func TestDifficultyChangedHandler(t *testing.T) {
	refresher := &fakeRefresher{}
	h := NewDifficultyChangedHandler(refresher, zap.NewNop())
	assert.Equal(t, []string{catalog.EventTypeDifficultyChanged}, h.EventTypes())

	event := catalog.NewDifficultyChangedEvent("P1", uuid.New(), catalog.DifficultyChangeCreated)
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Equal(t, []catalog.SourceKey{catalog.SourceKeyManufactureDifficulty}, refresher.triggered)

	// refresh failures are not handler failures
	refresher.err = errors.New("lease held")
	assert.NoError(t, h.Handle(context.Background(), event))

	wrong := catalog.NewSourceRefreshedEvent(catalog.SourceKeyLots, 1, time.Now())
	assert.Error(t, h.Handle(context.Background(), wrong))
}
