package dto

import "animetrack/internal/microservices/http-api/models"

// CreateCollectionRequest: flat payload to save an anime to a user's collection
type CreateCollectionRequest struct {
	UserID          int64               `json:"user_id" binding:"required,gt=0"`
	AnimeID         int64               `json:"anime_id" binding:"required,gt=0"`
	Status          *models.WatchStatus `json:"status"`
	Rating          *float64            `json:"rating"`
	EpisodesWatched *int                `json:"episodes_watched"`
	Notes           *string             `json:"notes"`
	IsFavorite      *bool               `json:"is_favorite"`
	Origin          models.Origin       `json:"origin"`
}

func (r CreateCollectionRequest) Fields() models.CollectionFields {
	return models.CollectionFields{
		Status:          r.Status,
		Rating:          r.Rating,
		EpisodesWatched: r.EpisodesWatched,
		Notes:           r.Notes,
		IsFavorite:      r.IsFavorite,
		Origin:          r.Origin,
	}
}

// ConflictResponse: 409 body, existing is omitted if it could not be read back
type ConflictResponse struct {
	Error    string                 `json:"error"`
	Existing *models.CollectionItem `json:"existing,omitempty"`
}

// DeleteResponse: body of a successful removal
type DeleteResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

// ValidationResponse: 400 body listing offending fields
type ValidationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
