package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/domain/shared"
	"github.com/erp/catalogcache/internal/infrastructure/cache"
	"github.com/erp/catalogcache/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// FetchFunc loads the full dataset of a source from its upstream system
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// RefreshJob fetches one source and installs the result into the store
type RefreshJob interface {
	Key() catalog.SourceKey
	Interval() time.Duration
	// Run fetches and installs the dataset, returning the number of records.
	// A failed or cancelled fetch installs nothing.
	Run(ctx context.Context) (int, error)
}

type refreshJob[T any] struct {
	src      catalog.Source[T]
	fetch    FetchFunc[T]
	store    *cache.SourceStore
	interval time.Duration
}

// NewRefreshJob creates a refresh job for a typed source
func NewRefreshJob[T any](src catalog.Source[T], fetch FetchFunc[T], store *cache.SourceStore, interval time.Duration) RefreshJob {
	return &refreshJob[T]{
		src:      src,
		fetch:    fetch,
		store:    store,
		interval: interval,
	}
}

func (j *refreshJob[T]) Key() catalog.SourceKey  { return j.src.Key() }
func (j *refreshJob[T]) Interval() time.Duration { return j.interval }

func (j *refreshJob[T]) Run(ctx context.Context) (int, error) {
	records, err := j.fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", j.src.Key(), err)
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("fetch %s: %w", j.src.Key(), err)
	}
	if err := cache.Set(ctx, j.store, j.src, records, time.Now()); err != nil {
		return 0, err
	}
	return len(records), nil
}

// RefreshObserver is notified after every refresh attempt
type RefreshObserver func(key catalog.SourceKey, duration time.Duration, records int, err error)

// RefreshDriverConfig holds refresh driver configuration
type RefreshDriverConfig struct {
	// FetchTimeout bounds a single fetch
	FetchTimeout time.Duration
	// LeaseTTL is how long a refresh lease is held at most
	LeaseTTL time.Duration
	// RefreshOnStart runs every job once when the driver starts
	RefreshOnStart bool
}

// DefaultRefreshDriverConfig returns default refresh driver configuration
func DefaultRefreshDriverConfig() RefreshDriverConfig {
	return RefreshDriverConfig{
		FetchTimeout:   5 * time.Minute,
		LeaseTTL:       10 * time.Minute,
		RefreshOnStart: true,
	}
}

// RefreshJobStatus describes the last runs of a refresh job
type RefreshJobStatus struct {
	Key           catalog.SourceKey
	Interval      time.Duration
	Runs          int64
	Failures      int64
	LastRunAt     time.Time
	LastSuccessAt time.Time
	LastRecords   int
	LastError     string
}

// RefreshDriver runs every registered refresh job on its own ticker.
// A refresh lease makes sure only one instance refreshes a source at a time.
type RefreshDriver struct {
	config   RefreshDriverConfig
	lease    shared.RefreshLease
	observer RefreshObserver
	logger   *zap.Logger

	mu        sync.RWMutex
	jobs      map[catalog.SourceKey]RefreshJob
	status    map[catalog.SourceKey]*RefreshJobStatus
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RefreshDriverOption is a functional option for the refresh driver
type RefreshDriverOption func(*RefreshDriver)

// WithRefreshObserver registers a callback invoked after every refresh attempt
func WithRefreshObserver(observer RefreshObserver) RefreshDriverOption {
	return func(d *RefreshDriver) {
		d.observer = observer
	}
}

// NewRefreshDriver creates a new refresh driver. A nil lease means refreshes
// are not coordinated across instances.
func NewRefreshDriver(config RefreshDriverConfig, lease shared.RefreshLease, logger *zap.Logger, opts ...RefreshDriverOption) *RefreshDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &RefreshDriver{
		config: config,
		lease:  lease,
		logger: logger.Named("refresh_driver"),
		jobs:   make(map[catalog.SourceKey]RefreshJob),
		status: make(map[catalog.SourceKey]*RefreshJobStatus),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a job. Jobs registered after Start are only reachable
// through TriggerManualRefresh.
func (d *RefreshDriver) Register(job RefreshJob) error {
	if job == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidConfig)
	}
	if !job.Key().IsValid() {
		return ErrUnknownSource.WithMessage("unknown source key %q", job.Key())
	}
	if job.Interval() <= 0 {
		return fmt.Errorf("%w: interval for %s must be positive", ErrInvalidConfig, job.Key())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.jobs[job.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRegistered, job.Key())
	}
	d.jobs[job.Key()] = job
	d.status[job.Key()] = &RefreshJobStatus{Key: job.Key(), Interval: job.Interval()}
	return nil
}

// Start starts one goroutine per registered job
func (d *RefreshDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.isRunning = true

	for _, job := range d.jobs {
		d.wg.Add(1)
		go d.runLoop(ctx, job)
	}

	d.logger.Info("Refresh driver started",
		zap.Int("jobs", len(d.jobs)),
		zap.Duration("fetch_timeout", d.config.FetchTimeout),
	)
	return nil
}

// Stop cancels every ticker and waits for in-flight fetches
func (d *RefreshDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Refresh driver stopped gracefully")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Refresh driver stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the driver is running
func (d *RefreshDriver) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isRunning
}

// TriggerManualRefresh runs the job of a source immediately
func (d *RefreshDriver) TriggerManualRefresh(ctx context.Context, key catalog.SourceKey) error {
	d.mu.RLock()
	job, ok := d.jobs[key]
	d.mu.RUnlock()
	if !ok {
		return ErrUnknownSource.WithMessage("no refresh job for source %q", key)
	}

	d.logger.Info("Manual refresh triggered", zap.String("source", key.String()))
	return d.refresh(ctx, job)
}

// JobStatus returns the status of every registered job ordered by key
func (d *RefreshDriver) JobStatus() []RefreshJobStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]RefreshJobStatus, 0, len(d.status))
	for _, st := range d.status {
		result = append(result, *st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

func (d *RefreshDriver) runLoop(ctx context.Context, job RefreshJob) {
	defer d.wg.Done()

	if d.config.RefreshOnStart {
		_ = d.refresh(ctx, job)
	}

	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = d.refresh(ctx, job)
		}
	}
}

func (d *RefreshDriver) refresh(ctx context.Context, job RefreshJob) (err error) {
	key := job.Key()
	log := d.logger.With(zap.String("source", key.String()))

	ctx, span := telemetry.StartServiceSpan(ctx, "source", "refresh",
		telemetry.WithAttribute(telemetry.AttrSourceKey, key.String()))
	defer func() {
		if errors.Is(err, ErrRefreshInProgress) {
			telemetry.AddEvent(span, "lease_held")
		} else {
			telemetry.RecordError(span, err)
		}
		span.End()
	}()

	if d.lease != nil {
		token, acquired, err := d.lease.Acquire(ctx, "source:"+key.String(), d.leaseTTL())
		if err != nil {
			log.Error("Failed to acquire refresh lease", zap.Error(err))
			return fmt.Errorf("acquire refresh lease for %s: %w", key, err)
		}
		if !acquired {
			log.Debug("Refresh lease held elsewhere, skipping")
			return fmt.Errorf("%w: %s", ErrRefreshInProgress, key)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := d.lease.Release(releaseCtx, "source:"+key.String(), token); err != nil {
				log.Warn("Failed to release refresh lease", zap.Error(err))
			}
		}()
	}

	fetchCtx := ctx
	if d.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, d.config.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	records, err := job.Run(fetchCtx)
	duration := time.Since(start)

	d.record(key, start, records, err)
	if d.observer != nil {
		d.observer(key, duration, records, err)
	}

	if err != nil {
		log.Error("Source refresh failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}
	telemetry.SetAttributes(span, telemetry.AttrRecords, records)
	log.Info("Source refreshed",
		zap.Int("records", records),
		zap.Duration("duration", duration),
	)
	return nil
}

func (d *RefreshDriver) leaseTTL() time.Duration {
	if d.config.LeaseTTL > 0 {
		return d.config.LeaseTTL
	}
	if d.config.FetchTimeout > 0 {
		return 2 * d.config.FetchTimeout
	}
	return 10 * time.Minute
}

func (d *RefreshDriver) record(key catalog.SourceKey, at time.Time, records int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.status[key]
	if !ok {
		return
	}
	st.Runs++
	st.LastRunAt = at
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
		return
	}
	st.LastSuccessAt = at
	st.LastRecords = records
	st.LastError = ""
}
