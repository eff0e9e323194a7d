package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/logging"
	"github.com/pillchecker/medlabel/pkg/errors"
)

// redisCache stores JSON payloads in Redis. Concurrent loads for the same key
// are collapsed through singleflight so a cold key triggers at most one
// loader call per process; across processes, racing writers simply overwrite
// each other with equivalent values.
type redisCache struct {
	client     *redis.Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
	group      singleflight.Group
}

// RedisOption configures the Redis-backed cache.
type RedisOption func(*redisCache)

// WithPrefix sets the key prefix, isolating this application's keys.
func WithPrefix(prefix string) RedisOption {
	return func(c *redisCache) { c.prefix = prefix }
}

// WithRedisDefaultTTL sets the TTL applied when Set is called with zero.
func WithRedisDefaultTTL(ttl time.Duration) RedisOption {
	return func(c *redisCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// NewRedisCache wraps an existing go-redis client. The caller owns the
// client's lifecycle.
func NewRedisCache(client *redis.Client, log logging.Logger, opts ...RedisOption) Cache {
	c := &redisCache{
		client:     client,
		logger:     log,
		prefix:     "medlabel:",
		defaultTTL: 15 * time.Minute,
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string {
	return c.prefix + key
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	payload, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		c.logger.Warn("redis get failed", logging.String("key", key), logging.Err(err))
		return ErrCacheUnavailable.WithCause(err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal cached value")
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal value for cache")
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.fullKey(key), payload, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", logging.String("key", key), logging.Err(err))
		return ErrCacheUnavailable.WithCause(err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return ErrCacheUnavailable.WithCause(err)
	}
	return nil
}

func (c *redisCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration,
	loader func(ctx context.Context) (interface{}, error)) error {

	if err := c.Get(ctx, key, dest); err == nil {
		return nil
	} else if !errors.IsCode(err, errors.ErrCodeNotFound) && !errors.IsCode(err, errors.ErrCodeCacheError) {
		return err
	}

	payload, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, value, ttl); err != nil {
			// A write failure must not discard a successful load.
			c.logger.Warn("cache write-through failed", logging.String("key", key), logging.Err(err))
		}
		return json.Marshal(value)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload.([]byte), dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal loaded value")
	}
	return nil
}
