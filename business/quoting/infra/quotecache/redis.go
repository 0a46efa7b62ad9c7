package quotecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/quote-router/business/quoting/app"
	"github.com/fd1az/quote-router/business/quoting/domain"
	"github.com/fd1az/quote-router/internal/logger"
)

// DefaultKeyPrefix namespaces quote entries in a shared Redis.
const DefaultKeyPrefix = "quote-router:quote:"

// Redis is a shared backend for several router instances. Entries are
// stored as JSON with a PX expiry equal to their TTL. Redis failures are
// logged and reported as a miss.
type Redis struct {
	rdb    *redis.Client
	prefix string
	logger logger.LoggerInterface
}

var _ app.QuoteCache = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, log logger.LoggerInterface) *Redis {
	return &Redis{rdb: rdb, prefix: DefaultKeyPrefix, logger: log}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string, log logger.LoggerInterface) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(rdb, log), nil
}

func (r *Redis) Get(ctx context.Context, key string) (*domain.CacheEntry, bool) {
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn(ctx, "quote cache read failed", "key", key, "error", err)
		return nil, false
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		r.logger.Warn(ctx, "quote cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return &entry, true
}

func (r *Redis) Set(ctx context.Context, key string, entry *domain.CacheEntry) {
	if entry == nil || entry.TTL <= 0 {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		r.logger.Warn(ctx, "quote cache encode failed", "key", key, "error", err)
		return
	}
	if err := r.rdb.Set(ctx, r.prefix+key, raw, entry.TTL).Err(); err != nil {
		r.logger.Warn(ctx, "quote cache write failed", "key", key, "error", err)
	}
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
