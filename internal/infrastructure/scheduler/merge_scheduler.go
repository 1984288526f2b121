package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MergeState is the state of the merge scheduler
type MergeState int

const (
	// MergeStateIdle means no merge is pending or running
	MergeStateIdle MergeState = iota
	// MergeStatePending means a merge was requested and waits for the worker
	MergeStatePending
	// MergeStateMerging means a merge is running
	MergeStateMerging
)

// String returns the state name
func (s MergeState) String() string {
	switch s {
	case MergeStateIdle:
		return "IDLE"
	case MergeStatePending:
		return "PENDING"
	case MergeStateMerging:
		return "MERGING"
	default:
		return fmt.Sprintf("MergeState(%d)", int(s))
	}
}

// MergeFunc performs one merge. seq increases strictly with every merge.
type MergeFunc func(ctx context.Context, seq uint64) error

// MergeObserver is notified after every merge
type MergeObserver func(seq uint64, duration time.Duration, err error)

// MergeSchedulerConfig holds merge scheduler configuration
type MergeSchedulerConfig struct {
	// Debounce delays a non-priority merge so bursts of signals coalesce
	Debounce time.Duration
	// MergeTimeout bounds a single merge
	MergeTimeout time.Duration
}

// DefaultMergeSchedulerConfig returns default merge scheduler configuration
func DefaultMergeSchedulerConfig() MergeSchedulerConfig {
	return MergeSchedulerConfig{
		Debounce:     2 * time.Second,
		MergeTimeout: 2 * time.Minute,
	}
}

// MergeStats holds merge counters
type MergeStats struct {
	Started         int64
	Completed       int64
	Failed          int64
	LastSeq         uint64
	LastDuration    time.Duration
	LastCompletedAt time.Time
	LastError       string
}

type mergeWaiter struct {
	minSeq uint64
	done   chan error
}

// MergeScheduler coalesces dirty signals into merges executed by a single
// worker. State moves Idle -> Pending -> Merging -> Idle; a signal that
// arrives while merging re-arms the scheduler so another merge follows
// immediately. At most one merge runs at a time and no signal is lost.
type MergeScheduler struct {
	config   MergeSchedulerConfig
	merge    MergeFunc
	observer MergeObserver
	logger   *zap.Logger

	mu         sync.Mutex
	state      MergeState
	rearmed    bool
	priority   bool
	debouncing bool
	seq        uint64
	waiters    []*mergeWaiter
	stats      MergeStats
	isRunning  bool

	wake   chan struct{}
	hurry  chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// MergeSchedulerOption is a functional option for the merge scheduler
type MergeSchedulerOption func(*MergeScheduler)

// WithMergeObserver registers a callback invoked after every merge
func WithMergeObserver(observer MergeObserver) MergeSchedulerOption {
	return func(s *MergeScheduler) {
		s.observer = observer
	}
}

// NewMergeScheduler creates a new merge scheduler
func NewMergeScheduler(config MergeSchedulerConfig, merge MergeFunc, logger *zap.Logger, opts ...MergeSchedulerOption) (*MergeScheduler, error) {
	if merge == nil {
		return nil, ErrMergeFuncRequired
	}
	if config.Debounce < 0 || config.MergeTimeout < 0 {
		return nil, fmt.Errorf("%w: negative durations", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MergeScheduler{
		config: config,
		merge:  merge,
		logger: logger.Named("merge_scheduler"),
		wake:   make(chan struct{}, 1),
		hurry:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start starts the merge worker
func (s *MergeScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	pending := s.state == MergeStatePending
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.worker(ctx)
	if pending {
		s.signal(s.wake)
	}

	s.logger.Info("Merge scheduler started",
		zap.Duration("debounce", s.config.Debounce),
		zap.Duration("merge_timeout", s.config.MergeTimeout),
	)
	return nil
}

// Stop stops the worker, aborting a running merge, and fails every waiter
func (s *MergeScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.logger.Info("Merge scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("Merge scheduler stop timed out")
		err = ctx.Err()
	}

	s.mu.Lock()
	for _, w := range s.waiters {
		w.done <- ErrSchedulerNotRunning
	}
	s.waiters = nil
	s.mu.Unlock()

	return err
}

// MarkDirty records that at least one source changed since the last merge
func (s *MergeScheduler) MarkDirty(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDirtyLocked(reason)
}

func (s *MergeScheduler) markDirtyLocked(reason string) {
	switch s.state {
	case MergeStateIdle:
		s.state = MergeStatePending
		s.signal(s.wake)
		s.logger.Debug("Merge requested", zap.String("reason", reason))
	case MergeStatePending:
		// coalesced into the pending merge
	case MergeStateMerging:
		s.rearmed = true
	}
}

// RequestMerge marks the scheduler dirty with priority and blocks until a
// merge that started after the call has completed. It returns that merge's error.
func (s *MergeScheduler) RequestMerge(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	w := &mergeWaiter{minSeq: s.seq + 1, done: make(chan error, 1)}
	s.waiters = append(s.waiters, w)
	s.priority = true
	s.markDirtyLocked("priority request")
	if s.debouncing {
		s.signal(s.hurry)
	}
	s.mu.Unlock()

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		s.removeWaiter(w)
		return ctx.Err()
	}
}

// InProgress reports whether a merge is pending or running
func (s *MergeScheduler) InProgress() bool {
	return s.State() != MergeStateIdle
}

// State returns the current state
func (s *MergeScheduler) State() MergeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the merge counters
func (s *MergeScheduler) Stats() MergeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *MergeScheduler) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *MergeScheduler) removeWaiter(target *mergeWaiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == target {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *MergeScheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.runPending(ctx)
		}
	}
}

// runPending takes Pending -> Merging and keeps merging while re-armed
func (s *MergeScheduler) runPending(ctx context.Context) {
	s.mu.Lock()
	if s.state != MergeStatePending {
		s.mu.Unlock()
		return
	}
	priority := s.priority
	s.mu.Unlock()

	if !priority && s.config.Debounce > 0 && !s.debounce(ctx) {
		return
	}

	for {
		s.mu.Lock()
		s.state = MergeStateMerging
		s.rearmed = false
		s.priority = false
		s.seq++
		seq := s.seq
		s.stats.Started++
		s.mu.Unlock()

		start := time.Now()
		err := s.execute(ctx, seq)
		duration := time.Since(start)

		s.mu.Lock()
		s.finishLocked(seq, duration, err)
		again := s.rearmed && ctx.Err() == nil
		if !again {
			if s.rearmed {
				s.state = MergeStatePending
			} else {
				s.state = MergeStateIdle
			}
		}
		s.mu.Unlock()

		if s.observer != nil {
			s.observer(seq, duration, err)
		}
		if !again {
			return
		}
	}
}

// debounce waits out the debounce period unless a priority request cuts it
// short. hurry is only signalled while debouncing and is drained afterwards,
// so no token outlives the wait it was meant for.
func (s *MergeScheduler) debounce(ctx context.Context) bool {
	s.mu.Lock()
	s.debouncing = true
	s.mu.Unlock()

	timer := time.NewTimer(s.config.Debounce)
	defer timer.Stop()

	completed := true
	select {
	case <-ctx.Done():
		completed = false
	case <-timer.C:
	case <-s.hurry:
	}

	s.mu.Lock()
	s.debouncing = false
	s.mu.Unlock()
	select {
	case <-s.hurry:
	default:
	}
	return completed
}

func (s *MergeScheduler) finishLocked(seq uint64, duration time.Duration, err error) {
	s.stats.LastSeq = seq
	s.stats.LastDuration = duration
	if err != nil {
		s.stats.Failed++
		s.stats.LastError = err.Error()
		s.logger.Error("Merge failed",
			zap.Uint64("seq", seq),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	} else {
		s.stats.Completed++
		s.stats.LastError = ""
		s.stats.LastCompletedAt = time.Now()
		s.logger.Info("Merge completed",
			zap.Uint64("seq", seq),
			zap.Duration("duration", duration),
		)
	}

	remaining := s.waiters[:0]
	for _, w := range s.waiters {
		if w.minSeq <= seq {
			w.done <- err
			continue
		}
		remaining = append(remaining, w)
	}
	s.waiters = remaining
}

func (s *MergeScheduler) execute(ctx context.Context, seq uint64) (err error) {
	if s.config.MergeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.MergeTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("merge %d panicked: %v", seq, r)
		}
	}()
	return s.merge(ctx, seq)
}
