package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartflow/pkg/catalog"
	"cartflow/pkg/logger"
	"cartflow/pkg/store"
)

// fakeRedis implements the handful of commands the cache uses.
type fakeRedis struct {
	redis.Cmdable
	data   map[string]string
	ttl    time.Duration
	delErr error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if v, ok := f.data[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	f.data[key] = string(value.([]byte))
	f.ttl = ttl
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	if f.delErr != nil {
		cmd.SetErr(f.delErr)
		return cmd
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	cmd.SetVal(int64(len(keys)))
	return cmd
}

type countingSource struct {
	calls int
	items []catalog.Item
}

func (c *countingSource) Fetch(context.Context) ([]catalog.Item, error) {
	c.calls++
	return c.items, nil
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()
	rdb := &fakeRedis{data: map[string]string{}}
	inner := &countingSource{items: []catalog.Item{{ID: "a", Name: "Apple", Price: decimal.RequireFromString("3.00")}}}
	src := New(rdb, inner, time.Minute, logger.Nop())

	items, err := src.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, time.Minute, rdb.ttl)
	assert.Contains(t, rdb.data, DefaultKey)

	items, err = src.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, inner.calls, "second fetch must be served from redis")
	assert.True(t, items[0].Price.Equal(decimal.RequireFromString("3")))

	require.NoError(t, src.Invalidate(ctx))
	_, err = src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCorruptEntryFallsBack(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{"custom": "{not json"}}
	inner := &countingSource{items: []catalog.Item{{ID: "a"}}}

	items, err := New(rdb, inner, time.Minute, logger.Nop()).WithKey("custom").Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestRedisDownFallsBack(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer rdb.Close()
	inner := &countingSource{items: []catalog.Item{{ID: "a"}, {ID: "b"}}}

	items, err := New(rdb, inner, time.Minute, logger.Nop()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestInvalidateError(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{}, delErr: errors.New("connection refused")}
	err := New(rdb, nil, time.Minute, logger.Nop()).Invalidate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidate catalog cache")
}

func TestStoreSeesCatalogAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	rdb := &fakeRedis{data: map[string]string{}}
	inner := &countingSource{items: []catalog.Item{{ID: "a", Name: "Apple"}}}
	src := New(rdb, inner, time.Minute, logger.Nop())
	st := store.New(logger.Nop())

	require.NoError(t, st.LoadCatalog(ctx, src))
	assert.Len(t, st.State().Catalog.Products, 1)

	inner.items = append(inner.items, catalog.Item{ID: "b", Name: "Bread"})
	require.NoError(t, st.LoadCatalog(ctx, src))
	assert.Len(t, st.State().Catalog.Products, 1, "cached entry still served")

	require.NoError(t, src.Invalidate(ctx))
	require.NoError(t, st.LoadCatalog(ctx, src))
	assert.Len(t, st.State().Catalog.Products, 2)
	assert.Equal(t, 2, inner.calls)
}
