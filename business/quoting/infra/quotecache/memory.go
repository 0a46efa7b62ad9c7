// Package quotecache provides the backends behind app.QuoteCache.
package quotecache

import (
	"context"
	"time"

	"github.com/fd1az/quote-router/business/quoting/app"
	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/cache"
)

// Memory is the in-process backend. Entries expire with their own TTL.
type Memory struct {
	store *cache.Cache[string, *domain.CacheEntry]
}

var _ app.QuoteCache = (*Memory)(nil)

// NewMemory creates an in-process quote cache.
func NewMemory(ttl time.Duration, opts ...cache.Option) *Memory {
	return &Memory{store: cache.New[string, *domain.CacheEntry](ttl, opts...)}
}

func (m *Memory) Get(ctx context.Context, key string) (*domain.CacheEntry, bool) {
	return m.store.Get(ctx, key)
}

func (m *Memory) Set(ctx context.Context, key string, entry *domain.CacheEntry) {
	if entry == nil {
		return
	}
	ttl := entry.TTL
	if ttl <= 0 {
		ttl = m.store.TTL()
	}
	m.store.SetWithTTL(ctx, key, entry, ttl)
}

// Len counts stored entries, expired ones included until swept.
func (m *Memory) Len() int {
	return m.store.Len()
}

// RunSweeper drops expired entries every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	m.store.RunSweeper(ctx, interval)
}
