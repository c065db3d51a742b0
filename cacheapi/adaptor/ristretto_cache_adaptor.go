package cachewrap

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/ValentinKolb/filegate/cacheapi"
)

type LimitRistrettoKey interface {
	uint64 | string | byte | int | int32 | uint32 | int64
}

type ristrettoCacheWrap[K LimitRistrettoKey, V any] struct {
	c   *ristretto.Cache[K, V]
	ttl time.Duration
}

func (r *ristrettoCacheWrap[K, V]) Get(ctx context.Context, k K) (V, error) {
	v, ok := r.c.Get(k)
	if !ok {
		return v, cacheapi.ErrCacheKeyNotExist
	}
	return v, nil
}

func (r *ristrettoCacheWrap[K, V]) Set(ctx context.Context, k K, v V) error {
	if r.ttl > 0 {
		_ = r.c.SetWithTTL(k, v, 0, r.ttl)
		return nil
	}
	_ = r.c.Set(k, v, 0)
	return nil
}

func (r *ristrettoCacheWrap[K, V]) Del(ctx context.Context, k K) error {
	r.c.Del(k)
	return nil
}

// WrapRistrettoCache adapts a ristretto cache; entries expire after ttl
// when ttl is non-zero.
func WrapRistrettoCache[K LimitRistrettoKey, V any](c *ristretto.Cache[K, V], ttl time.Duration) cacheapi.ICache[K, V] {
	return &ristrettoCacheWrap[K, V]{c: c, ttl: ttl}
}
