package service

import (
	"context"
	"errors"
	"strings"

	"animetrack/internal/shared"
)

var (
	ErrEmptyQuery    = errors.New("search query is required")
	ErrAnimeNotFound = shared.ErrAnimeNotFound
)

// MetadataSource is what the anime endpoints read from; search.Provider
// satisfies it.
type MetadataSource interface {
	SearchAnime(ctx context.Context, query string, page int) (*shared.SearchPage, error)
	GetAnime(ctx context.Context, animeID int64) (*shared.AnimeMetadata, error)
	Trending(ctx context.Context, page int) (*shared.SearchPage, error)
}

type AnimeService interface {
	Search(ctx context.Context, query string, page int) (*shared.SearchPage, error)
	Get(ctx context.Context, animeID int64) (*shared.AnimeMetadata, error)
	Trending(ctx context.Context, page int) (*shared.SearchPage, error)
}

type animeService struct {
	source MetadataSource
}

func NewAnimeService(source MetadataSource) AnimeService {
	return &animeService{source: source}
}

func (s *animeService) Search(ctx context.Context, query string, page int) (*shared.SearchPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if page < 1 {
		page = 1
	}
	return s.source.SearchAnime(ctx, query, page)
}

func (s *animeService) Get(ctx context.Context, animeID int64) (*shared.AnimeMetadata, error) {
	if animeID <= 0 {
		return nil, ErrAnimeNotFound
	}
	return s.source.GetAnime(ctx, animeID)
}

func (s *animeService) Trending(ctx context.Context, page int) (*shared.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	return s.source.Trending(ctx, page)
}
