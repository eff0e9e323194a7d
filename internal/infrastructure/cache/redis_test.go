package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/logging"
	"github.com/pillchecker/medlabel/pkg/errors"
)

// unreachableRedis returns a client pointing at a port nothing listens on,
// with timeouts short enough for unit tests. Behavior against a live server
// is covered by the memory implementation, which shares the serialization
// format and the Cache contract.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		ReadTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisCache_UnavailableOnGet(t *testing.T) {
	c := NewRedisCache(unreachableRedis(t), logging.NewNopLogger())

	var out string
	err := c.Get(context.Background(), "k", &out)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_SetSerializationErrorBeforeNetwork(t *testing.T) {
	c := NewRedisCache(unreachableRedis(t), logging.NewNopLogger())

	err := c.Set(context.Background(), "k", make(chan int), 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))
}

func TestRedisCache_GetOrSet_FallsThroughToLoader(t *testing.T) {
	c := NewRedisCache(unreachableRedis(t), logging.NewNopLogger(), WithPrefix("test:"))

	loads := 0
	var out string
	err := c.GetOrSet(context.Background(), "k", &out, time.Minute,
		func(ctx context.Context) (interface{}, error) {
			loads++
			return "loaded", nil
		})

	// The loader result is surfaced even though the write-through failed.
	require.NoError(t, err)
	assert.Equal(t, "loaded", out)
	assert.Equal(t, 1, loads)
}

func TestRedisCache_GetOrSet_LoaderError(t *testing.T) {
	c := NewRedisCache(unreachableRedis(t), logging.NewNopLogger())

	boom := errors.New(errors.ErrCodeNERUnavailable, "upstream down")
	var out string
	err := c.GetOrSet(context.Background(), "k", &out, 0,
		func(ctx context.Context) (interface{}, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}
