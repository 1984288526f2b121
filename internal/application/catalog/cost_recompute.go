package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"go.uber.org/zap"
)

// CostCalculator computes manufacture cost history from a source view
type CostCalculator interface {
	Calculate(ctx context.Context, view catalog.SourceView, now time.Time) (catalog.CostCalculation, error)
}

// DefaultCostInputs are the sources the manufacture cost allocation depends on
var DefaultCostInputs = []catalog.SourceKey{
	catalog.SourceKeyManufactureDifficulty,
	catalog.SourceKeyManufactureHistory,
}

// CostRecomputeGate recomputes manufacture costs only after every declared
// input source was reloaded since the previous computation. Until then the
// previous result is reused; before the first computation it is empty.
type CostRecomputeGate struct {
	calculator CostCalculator
	inputs     []catalog.SourceKey
	logger     *zap.Logger

	mu      sync.Mutex
	lastRun time.Time
	// newest input loadedAt consumed by the last computation
	consumed time.Time
	last     catalog.CostHistory
}

// NewCostRecomputeGate creates a gate over the given inputs, DefaultCostInputs when none are given
func NewCostRecomputeGate(calculator CostCalculator, logger *zap.Logger, inputs ...catalog.SourceKey) *CostRecomputeGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(inputs) == 0 {
		inputs = DefaultCostInputs
	}
	return &CostRecomputeGate{
		calculator: calculator,
		inputs:     append([]catalog.SourceKey(nil), inputs...),
		logger:     logger.Named("cost_recompute"),
		last:       catalog.CostHistory{},
	}
}

// Costs returns the manufacture cost history to merge with
func (g *CostRecomputeGate) Costs(ctx context.Context, view catalog.SourceView, now time.Time) (catalog.CostHistory, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.inputsChangedLocked(view) {
		return g.last, nil
	}

	result, err := g.calculator.Calculate(ctx, view, now)
	if err != nil {
		return g.last, err
	}

	for _, skipped := range result.Skipped {
		g.logger.Debug("manufacture cost month skipped",
			zap.Time("month", skipped.Month),
			zap.String("reason", skipped.Reason),
		)
	}
	g.logger.Info("manufacture costs recomputed",
		zap.Int("products", len(result.Costs)),
		zap.Int("skipped_months", len(result.Skipped)),
	)

	g.last = result.Costs
	g.lastRun = now
	g.consumed = g.newestInputLocked(view)
	return g.last, nil
}

// LastRun returns when costs were last recomputed
func (g *CostRecomputeGate) LastRun() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRun
}

// An input is compared with the loadedAt stamps the last computation saw,
// not with its wall clock: a dataset stamped before a merge started may be
// installed after that merge took its view.
func (g *CostRecomputeGate) inputsChangedLocked(view catalog.SourceView) bool {
	for _, key := range g.inputs {
		if !view.LoadedAt(key).After(g.consumed) {
			return false
		}
	}
	return true
}

func (g *CostRecomputeGate) newestInputLocked(view catalog.SourceView) time.Time {
	var newest time.Time
	for _, key := range g.inputs {
		if at := view.LoadedAt(key); at.After(newest) {
			newest = at
		}
	}
	return newest
}
