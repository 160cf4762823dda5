// Package cacher caches values that are expensive to fetch from a game
// server, such as its configured player limit, with stampede protection on
// misses. Values live either in process memory or in Redis.
package cacher

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned when a caller waiting for another fetcher to
// populate a key gives up.
var ErrWaitTimeout = errors.New("cacher: timed out waiting for concurrent fetch")

// FetchFunc loads the value for a key on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher caches values of type T by key.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn and caches
	// its result for ttl. Concurrent misses on one key run fetchFn once. A
	// failed fetch is returned to every waiting caller and nothing is cached.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - ttl: How long a fetched value stays cached
	//   - fetchFn: Loads the value on a miss
	//
	// Returns:
	//   - The cached or fetched value
	//   - An error if the cache backend or fetchFn fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
