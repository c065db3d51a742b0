package cacheapi_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	explru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/filegate/cacheapi"
	cachewrap "github.com/ValentinKolb/filegate/cacheapi/adaptor"
)

func newCache(t *testing.T) cacheapi.ICache[string, int] {
	t.Helper()
	return cachewrap.WrapExpirableLruCache(explru.NewLRU[string, int](8, nil, time.Minute))
}

func TestAdaptorRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, cacheapi.ErrCacheKeyNotExist)
	require.NoError(t, c.Set(ctx, "k", 7))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	require.NoError(t, c.Del(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, cacheapi.ErrCacheKeyNotExist)
}

func TestLoadManyFillsMisses(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	require.NoError(t, c.Set(ctx, "a", 1))
	calls := 0
	rs, err := cacheapi.LoadMany(ctx, c, []string{"a", "b", "c"}, func(ctx context.Context, miss []string) (map[string]int, error) {
		calls++
		assert.ElementsMatch(t, []string{"b", "c"}, miss)
		return map[string]int{"b": 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, rs)
	assert.Equal(t, 1, calls)

	// the miss result was written back; absent keys stay absent
	v, err := c.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = c.Get(ctx, "c")
	assert.ErrorIs(t, err, cacheapi.ErrCacheKeyNotExist)

	// a warm cache never calls back
	_, err = cacheapi.LoadMany(ctx, c, []string{"a", "b"}, func(ctx context.Context, miss []string) (map[string]int, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestLoadSingle(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	v, ok, err := cacheapi.Load(ctx, c, "k", func(ctx context.Context, miss []string) (map[string]int, error) {
		return map[string]int{"k": 9}, nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, v)

	_, ok, err = cacheapi.Load(ctx, c, "absent", func(ctx context.Context, miss []string) (map[string]int, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadPropagatesCallbackError(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	_, _, err := cacheapi.Load(ctx, c, "x", func(ctx context.Context, miss []string) (map[string]int, error) {
		return nil, fmt.Errorf("backend down")
	})
	assert.Error(t, err)
}
