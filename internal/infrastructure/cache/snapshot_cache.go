package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MergeTrigger is the part of the merge scheduler the cache depends on
type MergeTrigger interface {
	// MarkDirty requests an asynchronous merge
	MarkDirty(reason string)
	// RequestMerge blocks until a merge started after the call completes
	RequestMerge(ctx context.Context) error
	// InProgress reports whether a merge is pending or running
	InProgress() bool
}

// SnapshotCacheConfig configures the snapshot cache
type SnapshotCacheConfig struct {
	// ValidityPeriod is the maximum age of a snapshot served as fresh
	ValidityPeriod time.Duration
	// StaleRetention is how long a replaced snapshot stays available as fallback
	StaleRetention time.Duration
	// ServeStale enables serving the fallback while a merge is in progress
	ServeStale bool
	// PriorityMergeTimeout bounds a reader waiting for a synchronous merge
	PriorityMergeTimeout time.Duration
}

// DefaultSnapshotCacheConfig returns the default cache configuration
func DefaultSnapshotCacheConfig() SnapshotCacheConfig {
	return SnapshotCacheConfig{
		ValidityPeriod:       5 * time.Minute,
		StaleRetention:       30 * time.Minute,
		ServeStale:           true,
		PriorityMergeTimeout: 2 * time.Minute,
	}
}

type cacheState struct {
	current       *catalog.Snapshot
	staleFallback *catalog.Snapshot
	staleUntil    time.Time
	generation    uint64
}

// CacheStatus describes the cache for the operator API
type CacheStatus struct {
	Generation       uint64
	BuiltAt          time.Time
	Products         int
	HasCurrent       bool
	HasStaleFallback bool
	StaleUntil       time.Time
	StaleServed      int64
	PriorityMerges   int64
	DegradedReads    int64
}

// SnapshotCache owns the current and stale-fallback snapshots. Readers load
// the state through an atomic pointer; every mutation goes through mu.
type SnapshotCache struct {
	state   atomic.Pointer[cacheState]
	mu      sync.Mutex
	trigger MergeTrigger
	config  SnapshotCacheConfig
	logger  *zap.Logger
	clock   func() time.Time

	staleServed    atomic.Int64
	priorityMerges atomic.Int64
	degradedReads  atomic.Int64
}

// SnapshotCacheOption is a functional option for configuring the cache
type SnapshotCacheOption func(*SnapshotCache)

// WithClock overrides the time source
func WithClock(clock func() time.Time) SnapshotCacheOption {
	return func(c *SnapshotCache) {
		c.clock = clock
	}
}

// WithMergeTrigger sets the merge scheduler used on expired reads
func WithMergeTrigger(trigger MergeTrigger) SnapshotCacheOption {
	return func(c *SnapshotCache) {
		c.trigger = trigger
	}
}

// NewSnapshotCache creates an empty cache
func NewSnapshotCache(cfg SnapshotCacheConfig, logger *zap.Logger, opts ...SnapshotCacheOption) *SnapshotCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &SnapshotCache{
		config: cfg,
		logger: logger.Named("snapshot_cache"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(&cacheState{})
	return c
}

// SetMergeTrigger attaches the merge scheduler. It must be called during
// wiring, before the first Read.
func (c *SnapshotCache) SetMergeTrigger(trigger MergeTrigger) {
	c.trigger = trigger
}

// Read returns the best snapshot for a reader:
// a fresh current snapshot, the stale fallback while a merge is running,
// or the result of a synchronous priority merge.
func (c *SnapshotCache) Read(ctx context.Context) (*catalog.Snapshot, error) {
	now := c.clock()
	st := c.state.Load()

	if st.current != nil && st.current.IsFresh(now, c.config.ValidityPeriod) {
		return st.current, nil
	}

	if st.current != nil {
		c.demote(st.current, now)
	}

	if c.trigger == nil {
		return c.retained(now)
	}
	c.trigger.MarkDirty("cache expired")

	st = c.state.Load()
	if c.config.ServeStale && c.trigger.InProgress() && st.staleFallback != nil && !now.After(st.staleUntil) {
		c.staleServed.Add(1)
		c.logger.Debug("serving stale fallback while merge is in progress",
			zap.Uint64("generation", st.staleFallback.Generation()),
			zap.Duration("age", st.staleFallback.Age(now)),
		)
		return st.staleFallback, nil
	}

	return c.priorityMerge(ctx)
}

func (c *SnapshotCache) priorityMerge(ctx context.Context) (*catalog.Snapshot, error) {
	c.priorityMerges.Add(1)
	if c.config.PriorityMergeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.PriorityMergeTimeout)
		defer cancel()
	}

	err := c.trigger.RequestMerge(ctx)
	if st := c.state.Load(); err == nil && st.current != nil {
		return st.current, nil
	}

	snapshot, retainedErr := c.retained(c.clock())
	if retainedErr == nil {
		c.degradedReads.Add(1)
		c.logger.Warn("priority merge did not produce a snapshot, serving retained one",
			zap.Uint64("generation", snapshot.Generation()),
			zap.Error(err),
		)
		return snapshot, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, retainedErr
}

// retained returns current, else the fallback within its retention window
func (c *SnapshotCache) retained(now time.Time) (*catalog.Snapshot, error) {
	st := c.state.Load()
	if st.current != nil {
		return st.current, nil
	}
	if st.staleFallback != nil && !now.After(st.staleUntil) {
		return st.staleFallback, nil
	}
	return nil, catalog.ErrCacheEmpty
}

// demote moves an expired current snapshot into the fallback slot
func (c *SnapshotCache) demote(expired *catalog.Snapshot, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state.Load()
	if st.current != expired {
		return
	}
	c.state.Store(&cacheState{
		staleFallback: expired,
		staleUntil:    now.Add(c.config.StaleRetention),
		generation:    st.generation,
	})
	c.logger.Debug("current snapshot expired",
		zap.Uint64("generation", expired.Generation()),
		zap.Duration("age", expired.Age(now)),
	)
}

// Replace installs a newly merged snapshot. The previous current snapshot
// becomes the stale fallback. Snapshots that are not newer than the last
// installed generation are rejected with ErrStaleSnapshot.
func (c *SnapshotCache) Replace(snapshot *catalog.Snapshot) error {
	if snapshot == nil {
		return errors.New("snapshot is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state.Load()
	if snapshot.Generation() <= st.generation {
		return catalog.ErrStaleSnapshot.WithMessage(
			"snapshot generation %d is not newer than %d", snapshot.Generation(), st.generation)
	}

	next := &cacheState{
		current:       snapshot,
		staleFallback: st.staleFallback,
		staleUntil:    st.staleUntil,
		generation:    snapshot.Generation(),
	}
	if st.current != nil {
		next.staleFallback = st.current
		next.staleUntil = c.clock().Add(c.config.StaleRetention)
	}
	c.state.Store(next)

	c.logger.Info("catalog snapshot replaced",
		zap.Uint64("generation", snapshot.Generation()),
		zap.Int("products", snapshot.Len()),
	)
	return nil
}

// ApplyOptimisticStockAdjustment overwrites the ERP stock of one product in
// the live snapshot. This intentionally bypasses the merge pipeline so
// callers read their own write; the next merge overwrites it. Between expiry
// and the next merge the live snapshot is the retained fallback readers are
// served, so that one is adjusted instead.
func (c *SnapshotCache) ApplyOptimisticStockAdjustment(code string, quantity decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state.Load()
	next := *st
	switch {
	case st.current != nil:
		adjusted, err := st.current.WithStockAdjustment(code, quantity)
		if err != nil {
			return err
		}
		next.current = adjusted
	case st.staleFallback != nil && !c.clock().After(st.staleUntil):
		adjusted, err := st.staleFallback.WithStockAdjustment(code, quantity)
		if err != nil {
			return err
		}
		next.staleFallback = adjusted
	default:
		return catalog.ErrCacheEmpty
	}

	c.state.Store(&next)
	return nil
}

// Peek returns the current snapshot without triggering a merge
func (c *SnapshotCache) Peek() *catalog.Snapshot {
	return c.state.Load().current
}

// Latest returns the current snapshot, else the fallback within its
// retention window, without triggering a merge. Nil when neither exists.
func (c *SnapshotCache) Latest() *catalog.Snapshot {
	snapshot, err := c.retained(c.clock())
	if err != nil {
		return nil
	}
	return snapshot
}

// Status returns a description of the cache state
func (c *SnapshotCache) Status() CacheStatus {
	st := c.state.Load()
	status := CacheStatus{
		Generation:       st.generation,
		HasCurrent:       st.current != nil,
		HasStaleFallback: st.staleFallback != nil,
		StaleUntil:       st.staleUntil,
		StaleServed:      c.staleServed.Load(),
		PriorityMerges:   c.priorityMerges.Load(),
		DegradedReads:    c.degradedReads.Load(),
	}
	if st.current != nil {
		status.BuiltAt = st.current.BuiltAt()
		status.Products = st.current.Len()
	}
	return status
}
