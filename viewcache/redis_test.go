package viewcache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/minesweeper/utils"
)

// newTestRedis connects to the server named by REDIS_ADDR and skips the test
// when it is unset. Each test gets its own namespace, purged on cleanup.
func newTestRedis(t *testing.T) (*RedisCache, *redis.Client) {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())

	c := NewRedis(client, "test:"+utils.GenerateRandomString(12), time.Minute)
	t.Cleanup(func() {
		_, _ = c.Purge(context.Background())
		_ = client.Close()
	})

	return c, client
}

func TestRedisCache_View(t *testing.T) {
	ctx := context.Background()

	t.Run("miss renders then hit reuses", func(t *testing.T) {
		c, client := newTestRedis(t)
		var calls int32

		text, err := c.View(ctx, 1, constRender("- -", &calls))
		require.NoError(t, err)
		assert.Equal(t, "- -", text)

		text, err = c.View(ctx, 1, constRender("other", &calls))
		require.NoError(t, err)
		assert.Equal(t, "- -", text)
		assert.Equal(t, int32(1), calls)

		exists, err := client.Exists(ctx, Key(c.namespace, 1)+":lock").Result()
		require.NoError(t, err)
		assert.Zero(t, exists, "render lock must be released")
	})

	t.Run("stale render is not cached", func(t *testing.T) {
		c, client := newTestRedis(t)

		_, err := c.View(ctx, 2, func(ctx context.Context) (string, error) {
			return "", ErrStale
		})
		assert.ErrorIs(t, err, ErrStale)

		exists, err := client.Exists(ctx, Key(c.namespace, 2)).Result()
		require.NoError(t, err)
		assert.Zero(t, exists)
	})

	t.Run("concurrent misses render once", func(t *testing.T) {
		c, _ := newTestRedis(t)
		var calls int32
		slow := func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(50 * time.Millisecond)
			return "shared", nil
		}

		const n = 10
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				text, err := c.View(ctx, 3, slow)
				assert.NoError(t, err)
				assert.Equal(t, "shared", text)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("waiter picks up the owner's render", func(t *testing.T) {
		c, client := newTestRedis(t)
		key := Key(c.namespace, 4)
		require.NoError(t, client.Set(ctx, key+":lock", "owner", time.Minute).Err())

		done := make(chan string, 1)
		go func() {
			var calls int32
			text, err := c.View(ctx, 4, constRender("waiter", &calls))
			assert.NoError(t, err)
			assert.Zero(t, calls)
			done <- text
		}()

		time.Sleep(30 * time.Millisecond)
		require.NoError(t, client.Set(ctx, key, "owner", time.Minute).Err())

		select {
		case text := <-done:
			assert.Equal(t, "owner", text)
		case <-time.After(3 * time.Second):
			t.Fatal("waiter never returned")
		}
	})

	t.Run("waiter gives up when the owner releases without caching", func(t *testing.T) {
		c, client := newTestRedis(t)
		lockKey := Key(c.namespace, 5) + ":lock"
		require.NoError(t, client.Set(ctx, lockKey, "owner", time.Minute).Err())

		errs := make(chan error, 1)
		go func() {
			var calls int32
			_, err := c.View(ctx, 5, constRender("waiter", &calls))
			errs <- err
		}()

		time.Sleep(30 * time.Millisecond)
		require.NoError(t, client.Del(ctx, lockKey).Err())

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrStale)
		case <-time.After(3 * time.Second):
			t.Fatal("waiter never returned")
		}
	})
}

func TestRedisCache_Purge(t *testing.T) {
	ctx := context.Background()
	c, client := newTestRedis(t)
	var calls int32

	for v := uint64(0); v < 5; v++ {
		_, err := c.View(ctx, v, constRender("x", &calls))
		require.NoError(t, err)
	}

	other := "other:" + utils.GenerateRandomString(12)
	require.NoError(t, client.Set(ctx, Key(other, 1), "keep", time.Minute).Err())
	t.Cleanup(func() { _ = client.Del(context.Background(), Key(other, 1)).Err() })

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = c.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	kept, err := client.Get(ctx, Key(other, 1)).Result()
	require.NoError(t, err)
	assert.Equal(t, "keep", kept)
}
