package cacher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	defaultLockTTL     = 30 * time.Second
	defaultWaitTimeout = 30 * time.Second
	minBackoff         = 10 * time.Millisecond
	maxBackoff         = 500 * time.Millisecond
)

// releaseScript deletes the lock only while it is still held by ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript refreshes the lock TTL only while it is still held by ARGV[1].
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisCacher is a Cacher shared by every process pointing at the same Redis.
// Values are stored as JSON under prefix+key. Concurrent misses inside one
// process share a single flight. Across processes one flight takes a SETNX
// lock and fetches while the others poll; a poller that sees the lock
// released without a value takes the lock and fetches itself, so every
// caller ends with either the value or a fetch error of its own.
type RedisCacher[T any] struct {
	client      redis.UniversalClient
	prefix      string
	lockTTL     time.Duration
	waitTimeout time.Duration
	group       singleflight.Group
}

// NewRedisCacher creates a Redis-backed cache.
//
// Parameters:
//   - client: A connected go-redis client
//   - prefix: Namespace prepended to every key, e.g. "pzrcon:"
//
// Returns:
//   - A new *RedisCacher[T]
func NewRedisCacher[T any](client redis.UniversalClient, prefix string) *RedisCacher[T] {
	return &RedisCacher[T]{
		client:      client,
		prefix:      prefix,
		lockTTL:     defaultLockTTL,
		waitTimeout: defaultWaitTimeout,
	}
}

// GetOrFetch implements Cacher.
func (c *RedisCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T
	fullKey := c.prefix + key

	res, err, _ := c.group.Do(fullKey, func() (any, error) {
		return c.load(ctx, fullKey, ttl, fetchFn)
	})
	if err != nil {
		return zero, err
	}

	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("cacher: unexpected value type %T for key %q", res, fullKey)
	}

	return v, nil
}

// load reads fullKey, fetching under the lock on a miss. It loops while some
// other process holds the lock and releases it without storing a value.
func (c *RedisCacher[T]) load(ctx context.Context, fullKey string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T
	lockKey := fullKey + ":lock"
	deadline := time.Now().Add(c.waitTimeout)

	for {
		v, found, err := c.get(ctx, fullKey)
		if err != nil || found {
			return v, err
		}

		token := uuid.NewString()
		acquired, err := c.client.SetNX(ctx, lockKey, token, c.lockTTL).Result()
		if err != nil {
			return zero, fmt.Errorf("cacher: acquire lock %q: %w", lockKey, err)
		}

		if acquired {
			return c.fetchLocked(ctx, fullKey, lockKey, token, ttl, fetchFn)
		}

		v, found, err = c.wait(ctx, fullKey, lockKey, deadline)
		if err != nil || found {
			return v, err
		}
	}
}

// fetchLocked runs fetchFn while holding lockKey and stores a successful result.
func (c *RedisCacher[T]) fetchLocked(ctx context.Context, fullKey, lockKey, token string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T

	// Cleanup must run even when ctx was cancelled by the caller.
	defer releaseScript.Run(context.Background(), c.client, []string{lockKey}, token)

	extendCtx, stopExtend := context.WithCancel(context.Background())
	defer stopExtend()
	go c.keepLock(extendCtx, lockKey, token)

	v, err := fetchFn(ctx)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("cacher: encode %q: %w", fullKey, err)
	}

	if err := c.client.Set(context.Background(), fullKey, data, ttl).Err(); err != nil {
		return zero, fmt.Errorf("cacher: store %q: %w", fullKey, err)
	}

	return v, nil
}

// Delete implements Cacher.
func (c *RedisCacher[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("cacher: delete %q: %w", c.prefix+key, err)
	}

	return nil
}

func (c *RedisCacher[T]) get(ctx context.Context, fullKey string) (T, bool, error) {
	var v T
	raw, err := c.client.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}

	if err != nil {
		return v, false, fmt.Errorf("cacher: get %q: %w", fullKey, err)
	}

	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("cacher: decode %q: %w", fullKey, err)
	}

	return v, true, nil
}

// keepLock extends the lock every third of its TTL until ctx is done.
func (c *RedisCacher[T]) keepLock(ctx context.Context, lockKey, token string) {
	ticker := time.NewTicker(c.lockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			extendScript.Run(ctx, c.client, []string{lockKey}, token, c.lockTTL.Milliseconds())
		}
	}
}

// wait polls with exponential backoff until fullKey holds a value or lockKey
// is released. found is false with a nil error when the lock went away
// without a value.
func (c *RedisCacher[T]) wait(ctx context.Context, fullKey, lockKey string, deadline time.Time) (v T, found bool, err error) {
	backoff := minBackoff

	for time.Now().Before(deadline) {
		v, found, err = c.get(ctx, fullKey)
		if err != nil || found {
			return v, found, err
		}

		held, existsErr := c.client.Exists(ctx, lockKey).Result()
		if existsErr != nil {
			return v, false, fmt.Errorf("cacher: check lock %q: %w", lockKey, existsErr)
		}

		if held == 0 {
			return v, false, nil
		}

		select {
		case <-ctx.Done():
			return v, false, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}

	return v, false, ErrWaitTimeout
}
