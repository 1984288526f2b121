package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingProcessor struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (p *recordingProcessor) OnEmit(_ context.Context, r *sdklog.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r.Clone())
	return nil
}

func (p *recordingProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool { return true }

func (p *recordingProcessor) Shutdown(context.Context) error   { return nil }
func (p *recordingProcessor) ForceFlush(context.Context) error { return nil }

func (p *recordingProcessor) bodies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func TestNewBridgedLogger_ForwardsAtLevel(t *testing.T) {
	processor := &recordingProcessor{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	baseCore, logs := observer.New(zapcore.DebugLevel)
	logger := NewBridgedLogger(zap.New(baseCore), newOTELCore("catalog-cache", provider, zapcore.InfoLevel))

	logger.Debug("merge skipped")
	logger.Info("merge completed", zap.Int64("generation", 4))
	logger.With(zap.String("source", "erp_stock")).Warn("refresh failed")

	assert.Equal(t, 3, logs.Len())
	assert.Equal(t, []string{"merge completed", "refresh failed"}, processor.bodies())
}

func TestNewZapOTELCore_DisabledProvider(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())

	core := NewZapOTELCore("catalog-cache", lp, zapcore.InfoLevel)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
	assert.False(t, NewZapOTELCore("catalog-cache", nil, zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
	assert.NoError(t, lp.Shutdown(context.Background()))
}
