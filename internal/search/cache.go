package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"animetrack/internal/shared"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "animetrack:meta:"

// CachedProvider keeps upstream answers in Redis for ttl. Redis errors are
// logged and fall through to the wrapped provider.
type CachedProvider struct {
	next   Provider
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedProvider(next Provider, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// NewRedisClient parses a redis:// URL; password overrides the one in the URL.
func NewRedisClient(redisURL, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	return redis.NewClient(opts), nil
}

func (c *CachedProvider) Name() string { return c.next.Name() }

func searchKey(query string, page int) string {
	return fmt.Sprintf("%ssearch:%s:%d", keyPrefix, strings.ToLower(strings.TrimSpace(query)), page)
}

func trendingKey(page int) string {
	return fmt.Sprintf("%strending:%d", keyPrefix, page)
}

func animeKey(id int64) string {
	return fmt.Sprintf("%sanime:%d", keyPrefix, id)
}

func (c *CachedProvider) SearchAnime(ctx context.Context, query string, page int) (*shared.SearchPage, error) {
	key := searchKey(query, page)
	var cached shared.SearchPage
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	res, err := c.next.SearchAnime(ctx, query, page)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, res)
	return res, nil
}

// Trending pages are cached per page number for ttl.
func (c *CachedProvider) Trending(ctx context.Context, page int) (*shared.SearchPage, error) {
	key := trendingKey(page)
	var cached shared.SearchPage
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	res, err := c.next.Trending(ctx, page)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, res)
	return res, nil
}

func (c *CachedProvider) GetAnime(ctx context.Context, animeID int64) (*shared.AnimeMetadata, error) {
	key := animeKey(animeID)
	var cached shared.AnimeMetadata
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	meta, err := c.next.GetAnime(ctx, animeID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, meta)
	return meta, nil
}

func (c *CachedProvider) load(ctx context.Context, key string, out any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("metadata_cache_read_failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("metadata_cache_decode_failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedProvider) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("metadata_cache_write_failed", "key", key, "error", err)
	}
}
