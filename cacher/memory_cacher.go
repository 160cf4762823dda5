package cacher

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCacher is a process-local Cacher on go-cache. Concurrent misses on
// the same key are collapsed with singleflight.
type MemoryCacher[T any] struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCacher creates an empty in-memory cache.
//
// Parameters:
//   - cleanupInterval: How often expired entries are purged
//
// Returns:
//   - A new *MemoryCacher[T]
func NewMemoryCacher[T any](cleanupInterval time.Duration) *MemoryCacher[T] {
	return &MemoryCacher[T]{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

// GetOrFetch implements Cacher.
func (c *MemoryCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// A previous flight may have filled the key while this one queued.
		if v, ok := c.get(key); ok {
			return v, nil
		}

		v, err := fetchFn(ctx)
		if err != nil {
			return nil, err
		}

		c.cache.Set(key, v, ttl)
		return v, nil
	})

	var zero T
	if err != nil {
		return zero, err
	}

	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("cacher: unexpected value type %T for key %q", res, key)
	}

	return v, nil
}

// Delete implements Cacher.
func (c *MemoryCacher[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(key)
	return nil
}

// Len returns the number of cached entries, including expired ones not yet purged.
func (c *MemoryCacher[T]) Len() int {
	return c.cache.ItemCount()
}

func (c *MemoryCacher[T]) get(key string) (T, bool) {
	var zero T
	raw, ok := c.cache.Get(key)
	if !ok {
		return zero, false
	}

	v, ok := raw.(T)
	return v, ok
}
