package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/catalogcache/internal/domain/shared"
	"github.com/google/uuid"
)

type leaseEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryRefreshLease implements RefreshLease with an in-process map.
// Suitable for single-instance deployments and testing.
type InMemoryRefreshLease struct {
	mu        sync.Mutex
	entries   map[string]leaseEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryRefreshLease creates a new in-memory lease and starts the
// goroutine that drops expired entries
func NewInMemoryRefreshLease() *InMemoryRefreshLease {
	l := &InMemoryRefreshLease{
		entries:  make(map[string]leaseEntry),
		stopChan: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop(time.Minute)

	return l
}

// Acquire takes the lease when it is free or expired
func (l *InMemoryRefreshLease) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if e, exists := l.entries[name]; exists && now.Before(e.expiresAt) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.entries[name] = leaseEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release frees the lease if token still owns it
func (l *InMemoryRefreshLease) Release(ctx context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, exists := l.entries[name]; exists && e.token == token {
		delete(l.entries, name)
	}
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *InMemoryRefreshLease) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

// Size returns the number of held leases
func (l *InMemoryRefreshLease) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *InMemoryRefreshLease) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *InMemoryRefreshLease) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for name, e := range l.entries {
		if now.After(e.expiresAt) {
			delete(l.entries, name)
		}
	}
}

var _ shared.RefreshLease = (*InMemoryRefreshLease)(nil)
