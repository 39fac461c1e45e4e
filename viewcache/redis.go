package viewcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisLockTTL     = 5 * time.Second
	redisWaitTimeout = 5 * time.Second
)

// releaseLockScript deletes the lock only if we still own it.
const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisCache is a ViewCache stored in Redis. Concurrent misses on the same
// version, from this or another process, are serialized with a SETNX lock so
// that only the lock owner renders; everyone else polls for its result.
type RedisCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedis creates a Redis-backed view cache. The client is owned by the caller.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	views := viewcache.NewRedis(client, "minesweeper:abc123", time.Minute)
func NewRedis(client *redis.Client, namespace string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

// View implements ViewCache.
func (c *RedisCache) View(ctx context.Context, version uint64, render RenderFunc) (string, error) {
	key := Key(c.namespace, version)

	text, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return text, nil
	}

	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis get error: %w", err)
	}

	lockKey := key + ":lock"
	lockValue := strconv.FormatInt(time.Now().UnixNano(), 10)

	acquired, err := c.client.SetNX(ctx, lockKey, lockValue, redisLockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire render lock: %w", err)
	}

	if !acquired {
		return c.waitForView(ctx, key, lockKey)
	}

	defer c.client.Eval(context.Background(), releaseLockScript, []string{lockKey}, lockValue)

	text, err = render(ctx)
	if err != nil {
		return "", fmt.Errorf("render failed: %w", err)
	}

	if err := c.client.Set(ctx, key, text, c.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to cache view: %w", err)
	}

	return text, nil
}

// waitForView polls for a view another caller is rendering, backing off
// from 5ms up to 100ms, until it appears, the lock disappears, the wait
// times out or ctx is cancelled.
func (c *RedisCache) waitForView(ctx context.Context, key, lockKey string) (string, error) {
	backoff := 5 * time.Millisecond
	deadline := time.Now().Add(redisWaitTimeout)

	for {
		text, err := c.client.Get(ctx, key).Result()
		if err == nil {
			return text, nil
		}

		if !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("redis get error: %w", err)
		}

		exists, err := c.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return "", fmt.Errorf("failed to check render lock: %w", err)
		}

		if exists == 0 {
			// The owner gave up without caching, most likely a stale render.
			return "", fmt.Errorf("view %s not populated: %w", key, ErrStale)
		}

		if time.Now().After(deadline) {
			return "", errors.New("timeout waiting for view")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}

		if backoff *= 2; backoff > 100*time.Millisecond {
			backoff = 100 * time.Millisecond
		}
	}
}

// Purge implements ViewCache. It scans the namespace with SCAN rather than
// KEYS and deletes matches in one call.
func (c *RedisCache) Purge(ctx context.Context) (int, error) {
	var keys []string

	iter := c.client.Scan(ctx, 0, c.namespace+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan keys: %w", err)
	}

	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}

	return int(deleted), nil
}
