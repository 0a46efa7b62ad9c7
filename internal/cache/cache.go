// Package cache provides an in-process generic TTL cache with lazy expiry on
// read and an optional background sweep.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

type options struct {
	clock clock.Clock
}

// Option configures a Cache.
type Option func(*options)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// Cache is a concurrency-safe map whose entries expire after a TTL.
type Cache[K comparable, V any] struct {
	ttl   time.Duration
	clock clock.Clock

	mu    sync.RWMutex
	items map[K]*item[V]
}

// New creates a cache whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration, opts ...Option) *Cache[K, V] {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[K, V]{
		ttl:   ttl,
		clock: o.clock,
		items: make(map[K]*item[V]),
	}
}

// TTL returns the default entry lifetime.
func (c *Cache[K, V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the live value for key. Expired entries are removed.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V

	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}

	if c.clock.Now().After(it.expiresAt) {
		c.mu.Lock()
		// Only drop the entry we observed; a concurrent Set may have replaced it.
		if cur, ok := c.items[key]; ok && cur == it {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return it.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache[K, V]) Set(ctx context.Context, key K, value V) {
	c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache[K, V]) SetWithTTL(ctx context.Context, key K, value V, ttl time.Duration) {
	it := &item[V]{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}

	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
}

// Delete removes key.
func (c *Cache[K, V]) Delete(ctx context.Context, key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache[K, V]) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done. Run it in its own
// goroutine.
func (c *Cache[K, V]) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := c.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
