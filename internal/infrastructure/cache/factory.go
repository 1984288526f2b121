package cache

import (
	"fmt"

	"github.com/erp/catalogcache/internal/domain/shared"
	"go.uber.org/zap"
)

// RefreshLeaseFactory creates refresh leases based on configuration
type RefreshLeaseFactory struct {
	redisConfig           RedisConfig
	redisEnabled          bool
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RefreshLeaseFactoryOption is a functional option for configuring the factory
type RefreshLeaseFactoryOption func(*RefreshLeaseFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RefreshLeaseFactoryOption {
	return func(f *RefreshLeaseFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-memory lease. Default is true.
func WithInMemoryFallback(allow bool) RefreshLeaseFactoryOption {
	return func(f *RefreshLeaseFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRefreshLeaseFactory creates a new factory. With redisEnabled false the
// factory always returns an in-memory lease.
func NewRefreshLeaseFactory(cfg RedisConfig, redisEnabled bool, opts ...RefreshLeaseFactoryOption) *RefreshLeaseFactory {
	f := &RefreshLeaseFactory{
		redisConfig:           cfg,
		redisEnabled:          redisEnabled,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateLease returns a Redis lease when Redis is enabled and reachable,
// otherwise an in-memory lease
func (f *RefreshLeaseFactory) CreateLease() (shared.RefreshLease, error) {
	if !f.redisEnabled {
		f.logger.Info("using in-memory refresh lease")
		return NewInMemoryRefreshLease(), nil
	}

	lease, err := NewRedisRefreshLease(f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis refresh lease",
			zap.String("host", f.redisConfig.Host),
			zap.Int("port", f.redisConfig.Port),
		)
		return lease, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for refresh lease but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory refresh lease; "+
		"several instances may refresh the same source concurrently",
		zap.Error(err),
	)
	return NewInMemoryRefreshLease(), nil
}
