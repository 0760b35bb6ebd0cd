package models

import "time"

// WatchStatus is the user's watch state for a collection item.
type WatchStatus string

const (
	StatusWatching    WatchStatus = "watching"
	StatusCompleted   WatchStatus = "completed"
	StatusPlanToWatch WatchStatus = "plan_to_watch"
	StatusDropped     WatchStatus = "dropped"
)

// Valid reports whether s is one of the known watch states.
func (s WatchStatus) Valid() bool {
	switch s {
	case StatusWatching, StatusCompleted, StatusPlanToWatch, StatusDropped:
		return true
	}
	return false
}

// Origin tells where a save action came from; it picks the default status.
type Origin string

const (
	OriginManual Origin = "manual"
	OriginSearch Origin = "search"
)

// DefaultStatus returns the status used when a create request omits one.
func (o Origin) DefaultStatus() WatchStatus {
	if o == OriginSearch {
		return StatusPlanToWatch
	}
	return StatusWatching
}

const (
	MinRating = 0.0
	MaxRating = 10.0
)

// CollectionItem is a user's saved record of one anime.
// (user_id, anime_id) is unique.
type CollectionItem struct {
	ID              int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64       `gorm:"not null;uniqueIndex:idx_collection_user_anime;index:idx_collection_user_created,priority:1" json:"user_id"`
	AnimeID         int64       `gorm:"not null;uniqueIndex:idx_collection_user_anime" json:"anime_id"`
	Status          WatchStatus `gorm:"type:varchar(20);not null;default:'watching'" json:"status"`
	Rating          *float64    `gorm:"check:chk_collection_rating,rating IS NULL OR (rating >= 0 AND rating <= 10)" json:"rating"`
	EpisodesWatched int         `gorm:"not null;default:0;check:chk_collection_episodes,episodes_watched >= 0" json:"episodes_watched"`
	Notes           *string     `gorm:"type:text" json:"notes"`
	IsFavorite      bool        `gorm:"not null;default:false" json:"is_favorite"`

	// Metadata snapshot copied from the upstream source at save time.
	Title         *string  `json:"title,omitempty"`
	Synopsis      *string  `gorm:"type:text" json:"synopsis,omitempty"`
	TotalEpisodes *int     `json:"total_episodes,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	ImageURL      *string  `json:"image_url,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_collection_user_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CollectionItem) TableName() string {
	return "collection_items"
}

// CollectionFields are the optional fields accepted at creation.
type CollectionFields struct {
	Status          *WatchStatus
	Rating          *float64
	EpisodesWatched *int
	Notes           *string
	IsFavorite      *bool
	Origin          Origin
}

// MetadataSnapshot is the upstream data copied into an item.
type MetadataSnapshot struct {
	Title         *string
	Synopsis      *string
	TotalEpisodes *int
	Score         *float64
	ImageURL      *string
}

func (s MetadataSnapshot) ApplyTo(item *CollectionItem) {
	item.Title = s.Title
	item.Synopsis = s.Synopsis
	item.TotalEpisodes = s.TotalEpisodes
	item.Score = s.Score
	item.ImageURL = s.ImageURL
}

// Columns maps the snapshot onto column names for a gorm Updates call.
func (s MetadataSnapshot) Columns() map[string]any {
	return map[string]any{
		"title":          s.Title,
		"synopsis":       s.Synopsis,
		"total_episodes": s.TotalEpisodes,
		"score":          s.Score,
		"image_url":      s.ImageURL,
	}
}
