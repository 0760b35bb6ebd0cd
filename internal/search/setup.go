package search

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"animetrack/internal/config"
	"animetrack/internal/ingestion/anilist"
	"animetrack/internal/ingestion/jikan"
)

// FromConfig chains the configured providers in order and puts the redis
// cache in front when REDIS_URL is set. Nil means no provider is enabled.
func FromConfig(cfg *config.Config, logger *slog.Logger) (Provider, error) {
	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}

	var providers []Provider
	for _, name := range cfg.MetadataProviders {
		switch name {
		case "jikan":
			providers = append(providers, jikan.NewClient(
				jikan.WithAPIURL(cfg.JikanAPIURL),
				jikan.WithHTTPClient(httpClient),
				jikan.WithLogger(logger),
			))
		case "anilist":
			providers = append(providers, anilist.NewClient(
				anilist.WithAPIURL(cfg.AniListAPIURL),
				anilist.WithHTTPClient(httpClient),
				anilist.WithLogger(logger),
			))
		}
	}
	if len(providers) == 0 {
		return nil, nil
	}

	var source Provider = NewFallbackProvider(logger, providers...)
	if cfg.RedisURL == "" {
		return source, nil
	}

	rdb, err := NewRedisClient(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// the cache is optional; lookups fall through to the providers
		logger.Warn("redis_unreachable", "error", err)
	}
	return NewCachedProvider(source, rdb, cfg.CacheTTL, logger), nil
}
