package shared

import "errors"

// shared types across the application: anime metadata returned by any
// upstream provider

// AnimeMetadata is the provider-neutral view of an anime.
// AnimeID is the MyAnimeList id, the identity collection items reference.
type AnimeMetadata struct {
	AnimeID  int64    `json:"anime_id"`
	Title    string   `json:"title"`
	Synopsis string   `json:"synopsis,omitempty"`
	Episodes *int     `json:"episodes,omitempty"`
	Score    *float64 `json:"score,omitempty"` // 0-10
	ImageURL string   `json:"image_url,omitempty"`
	Source   string   `json:"source"`
}

// SearchPage is one page of upstream search results.
type SearchPage struct {
	Query       string          `json:"query"`
	Page        int             `json:"page"`
	HasNextPage bool            `json:"has_next_page"`
	Results     []AnimeMetadata `json:"results"`
}

// Errors every metadata provider reports with.
var (
	ErrAnimeNotFound       = errors.New("anime not found upstream")
	ErrUpstreamUnavailable = errors.New("upstream metadata source unavailable")
)
