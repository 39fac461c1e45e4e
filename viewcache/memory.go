package viewcache

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCache is an in-process ViewCache. It uses go-cache for storage and
// singleflight so that concurrent misses on the same version render once.
type MemoryCache struct {
	namespace string
	ttl       time.Duration
	cache     *cache.Cache
	group     singleflight.Group
}

// NewMemory creates an in-memory view cache.
//
// Parameters:
//   - namespace: Key prefix for this board's entries
//   - ttl: How long a render is kept; older versions simply expire
//
// Returns:
//   - A new *MemoryCache
func NewMemory(namespace string, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		namespace: namespace,
		ttl:       ttl,
		cache:     cache.New(ttl, 2*ttl),
	}
}

// View implements ViewCache.
func (c *MemoryCache) View(ctx context.Context, version uint64, render RenderFunc) (string, error) {
	key := Key(c.namespace, version)
	if val, found := c.cache.Get(key); found {
		if text, ok := val.(string); ok {
			return text, nil
		}
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry while we waited for the group.
		if cached, found := c.cache.Get(key); found {
			if text, ok := cached.(string); ok {
				return text, nil
			}
		}

		text, err := render(ctx)
		if err != nil {
			return "", err
		}

		c.cache.Set(key, text, c.ttl)
		return text, nil
	})
	if err != nil {
		return "", err
	}

	return val.(string), nil
}

// Purge implements ViewCache.
func (c *MemoryCache) Purge(ctx context.Context) (int, error) {
	prefix := c.namespace + ":"
	deleted := 0

	for key := range c.cache.Items() {
		select {
		case <-ctx.Done():
			return deleted, ctx.Err()
		default:
		}

		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
			deleted++
		}
	}

	return deleted, nil
}

// Len returns the number of unexpired entries.
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}
