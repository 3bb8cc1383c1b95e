package cache

import (
	"context"
	"fmt"
	"time"
)

// refreshWindow is the fraction of an entry's TTL, measured from expiry,
// within which a hit triggers a background refresh.
const refreshWindow = 0.10

// Producer computes the value for a key on a cache miss.
type Producer func(ctx context.Context) (any, error)

// QueryOptions tune Query.
type QueryOptions struct {
	TTL  time.Duration
	Tags []string

	// RefreshInBackground re-runs the producer asynchronously when a hit
	// lands within the last 10% of the entry's TTL.
	RefreshInBackground bool
}

// Query memoizes producer under key. On a hit the cached value is returned.
// On a miss producer runs once per key across concurrent callers, its
// result is stored and returned. Producer errors are returned unchanged and
// never cached.
func (c *Cache) Query(ctx context.Context, key string, producer Producer, opts QueryOptions) (any, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	if v, ok := c.Get(key); ok {
		if opts.RefreshInBackground && c.nearExpiry(key) {
			c.refreshAsync(key, producer, opts)
		}
		return v, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		value, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(key, value, SetOptions{TTL: opts.TTL, Tags: opts.Tags}); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Failed to store query result")
		}
		return value, nil
	})
	return v, err
}

func (c *Cache) nearExpiry(key string) bool {
	info, ok := c.Inspect(key)
	if !ok || info.TTL <= 0 {
		return false
	}
	remaining := info.ExpiresAt.Sub(c.now())
	return remaining <= time.Duration(float64(info.TTL)*refreshWindow)
}

// refreshAsync re-runs producer in the background. Concurrent refreshes of
// the same key collapse into one; the goroutine is bound to the cache
// lifetime.
func (c *Cache) refreshAsync(key string, producer Producer, opts QueryOptions) {
	c.lifeMu.Lock()
	if c.closed.Load() {
		c.lifeMu.Unlock()
		return
	}
	c.wg.Add(1)
	c.lifeMu.Unlock()

	go func() {
		defer c.wg.Done()

		_, err, _ := c.flight.Do("refresh:"+key, func() (any, error) {
			value, err := producer(c.ctx)
			if err != nil {
				return nil, fmt.Errorf("refresh %q: %w", key, err)
			}
			return nil, c.Set(key, value, SetOptions{TTL: opts.TTL, Tags: opts.Tags})
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Background refresh failed")
			return
		}
		c.logger.Debug().Str("key", key).Msg("Background refresh complete")
	}()
}
