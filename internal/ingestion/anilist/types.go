package anilist

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"

	"animetrack/internal/shared"
)

// GraphQLRequest represents a GraphQL query request
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse represents a GraphQL response
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// GraphQLError represents a GraphQL error
type GraphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// PageResponse represents a paginated media response
type PageResponse struct {
	Page struct {
		PageInfo PageInfo    `json:"pageInfo"`
		Media    []MediaData `json:"media"`
	} `json:"Page"`
}

type PageInfo struct {
	CurrentPage int  `json:"currentPage"`
	HasNextPage bool `json:"hasNextPage"`
}

// MediaResponse wraps a single media item
type MediaResponse struct {
	Media *MediaData `json:"Media"`
}

// MediaData represents an anime entry from AniList
type MediaData struct {
	ID           int        `json:"id"`
	IDMal        *int64     `json:"idMal"`
	Title        TitleData  `json:"title"`
	Description  *string    `json:"description"`
	Episodes     *int       `json:"episodes"`
	AverageScore *int       `json:"averageScore"` // 0-100
	CoverImage   CoverImage `json:"coverImage"`
}

// TitleData contains title variants
type TitleData struct {
	English *string `json:"english"`
	Romaji  *string `json:"romaji"`
	Native  *string `json:"native"`
}

// CoverImage contains cover URLs
type CoverImage struct {
	Large  *string `json:"large"`
	Medium *string `json:"medium"`
}

// toMetadata maps an AniList entry to the provider-neutral shape.
// ok is false when the entry has no MyAnimeList id.
func (m MediaData) toMetadata() (shared.AnimeMetadata, bool) {
	if m.IDMal == nil || *m.IDMal <= 0 {
		return shared.AnimeMetadata{}, false
	}
	meta := shared.AnimeMetadata{
		AnimeID:  *m.IDMal,
		Title:    firstNonEmpty(m.Title.English, m.Title.Romaji, m.Title.Native),
		Episodes: m.Episodes,
		Source:   "anilist",
	}
	if m.Description != nil {
		meta.Synopsis = CleanDescription(*m.Description)
	}
	if m.AverageScore != nil {
		score := float64(*m.AverageScore) / 10.0
		meta.Score = &score
	}
	meta.ImageURL = firstNonEmpty(m.CoverImage.Large, m.CoverImage.Medium)
	return meta, true
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// CleanDescription removes HTML tags and decodes entities
func CleanDescription(desc string) string {
	cleaned := tagPattern.ReplaceAllString(desc, "")
	cleaned = html.UnescapeString(cleaned)
	return strings.TrimSpace(cleaned)
}
