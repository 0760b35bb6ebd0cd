package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"animetrack/internal/shared"
)

// Provider is an upstream anime metadata source.
type Provider interface {
	Name() string
	SearchAnime(ctx context.Context, query string, page int) (*shared.SearchPage, error)
	GetAnime(ctx context.Context, animeID int64) (*shared.AnimeMetadata, error)
	Trending(ctx context.Context, page int) (*shared.SearchPage, error)
}

// FallbackProvider asks each provider in order and returns the first usable
// answer. A provider that fails or comes back empty hands over to the next.
type FallbackProvider struct {
	providers []Provider
	logger    *slog.Logger
}

func NewFallbackProvider(logger *slog.Logger, providers ...Provider) *FallbackProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackProvider{providers: providers, logger: logger}
}

func (f *FallbackProvider) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (f *FallbackProvider) SearchAnime(ctx context.Context, query string, page int) (*shared.SearchPage, error) {
	return f.firstPage("search", func(p Provider) (*shared.SearchPage, error) {
		return p.SearchAnime(ctx, query, page)
	})
}

func (f *FallbackProvider) Trending(ctx context.Context, page int) (*shared.SearchPage, error) {
	return f.firstPage("trending", func(p Provider) (*shared.SearchPage, error) {
		return p.Trending(ctx, page)
	})
}

// firstPage returns the first non-empty page. An empty page is kept as the
// answer when no provider has results.
func (f *FallbackProvider) firstPage(op string, fetch func(Provider) (*shared.SearchPage, error)) (*shared.SearchPage, error) {
	var (
		empty   *shared.SearchPage
		lastErr error
	)
	for _, p := range f.providers {
		res, err := fetch(p)
		if err != nil {
			f.logger.Warn("metadata_provider_failed", "provider", p.Name(), "op", op, "error", err)
			lastErr = err
			continue
		}
		if len(res.Results) > 0 {
			return res, nil
		}
		if empty == nil {
			empty = res
		}
	}
	if empty != nil {
		return empty, nil
	}
	return nil, unavailable(lastErr)
}

// GetAnime returns ErrAnimeNotFound only when every provider that answered
// said so; any other failure makes the lookup unavailable.
func (f *FallbackProvider) GetAnime(ctx context.Context, animeID int64) (*shared.AnimeMetadata, error) {
	var (
		lastErr  error
		notFound bool
	)
	for _, p := range f.providers {
		meta, err := p.GetAnime(ctx, animeID)
		if err == nil {
			return meta, nil
		}
		if errors.Is(err, shared.ErrAnimeNotFound) {
			notFound = true
			continue
		}
		f.logger.Warn("metadata_provider_failed", "provider", p.Name(), "op", "get", "anime_id", animeID, "error", err)
		lastErr = err
	}
	if notFound && lastErr == nil {
		return nil, shared.ErrAnimeNotFound
	}
	return nil, unavailable(lastErr)
}

func unavailable(err error) error {
	if err == nil {
		return fmt.Errorf("%w: no providers configured", shared.ErrUpstreamUnavailable)
	}
	if errors.Is(err, shared.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrUpstreamUnavailable, err)
}
