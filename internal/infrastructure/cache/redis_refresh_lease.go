package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/catalogcache/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseKeyPrefix = "catalog:refresh-lease:"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// leaseClient is the subset of Redis used by the lease
type leaseClient interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// goRedisClient adapts *redis.Client to leaseClient
type goRedisClient struct {
	client *redis.Client
}

func (c goRedisClient) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

func (c goRedisClient) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c goRedisClient) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c goRedisClient) Close() error {
	return c.client.Close()
}

// RedisRefreshLease implements RefreshLease with SETNX so that several
// service instances share refresh ownership
type RedisRefreshLease struct {
	client    leaseClient
	keyPrefix string
}

// NewRedisRefreshLease connects to Redis and creates a lease
func NewRedisRefreshLease(cfg RedisConfig) (*RedisRefreshLease, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisRefreshLease(goRedisClient{client: client}, cfg.KeyPrefix), nil
}

// NewRedisRefreshLeaseWithClient creates a lease on an existing client
func NewRedisRefreshLeaseWithClient(client *redis.Client, keyPrefix string) *RedisRefreshLease {
	return newRedisRefreshLease(goRedisClient{client: client}, keyPrefix)
}

func newRedisRefreshLease(client leaseClient, keyPrefix string) *RedisRefreshLease {
	if keyPrefix == "" {
		keyPrefix = defaultLeaseKeyPrefix
	}
	return &RedisRefreshLease{client: client, keyPrefix: keyPrefix}
}

// Acquire sets the lease key if it does not exist yet
func (l *RedisRefreshLease) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.keyPrefix+name, token, ttl)
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes the lease key only if token still owns it
func (l *RedisRefreshLease) Release(ctx context.Context, name, token string) error {
	if token == "" {
		return nil
	}
	key := l.keyPrefix + name
	owner, err := l.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to read lease owner %s: %w", name, err)
	}
	if owner != token {
		return nil
	}
	if err := l.client.Del(ctx, key); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Close closes the Redis client
func (l *RedisRefreshLease) Close() error {
	return l.client.Close()
}

var _ shared.RefreshLease = (*RedisRefreshLease)(nil)
