package shared

import (
	"context"
	"time"
)

// RefreshLease grants exclusive, time-limited ownership of a named job so
// that only one process instance runs it at a time
type RefreshLease interface {
	// Acquire tries to take the lease for ttl. The returned token must be
	// passed to Release; acquired is false when another owner holds it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, acquired bool, err error)

	// Release frees the lease if token still owns it
	Release(ctx context.Context, name, token string) error

	// Close releases resources held by the lease backend
	Close() error
}
