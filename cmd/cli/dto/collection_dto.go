package dto

import (
	"encoding/json"
	"time"
)

// client-side views of the collection API payloads

// Watch states accepted by the server
const (
	StatusWatching    = "watching"
	StatusCompleted   = "completed"
	StatusPlanToWatch = "plan_to_watch"
	StatusDropped     = "dropped"
)

// Statuses in display order
var Statuses = []string{StatusWatching, StatusCompleted, StatusPlanToWatch, StatusDropped}

type CollectionItem struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	AnimeID         int64     `json:"anime_id"`
	Status          string    `json:"status"`
	Rating          *float64  `json:"rating"`
	EpisodesWatched int       `json:"episodes_watched"`
	Notes           *string   `json:"notes"`
	IsFavorite      bool      `json:"is_favorite"`
	Title           *string   `json:"title,omitempty"`
	TotalEpisodes   *int      `json:"total_episodes,omitempty"`
	Score           *float64  `json:"score,omitempty"`
	ImageURL        *string   `json:"image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Pending marks a local placeholder the server has not confirmed yet.
	Pending bool `json:"-"`
}

// DisplayTitle falls back to the anime id when no metadata was stored.
func (i CollectionItem) DisplayTitle() string {
	if i.Title != nil && *i.Title != "" {
		return *i.Title
	}
	return "anime #" + itoa(i.AnimeID)
}

type CreateCollectionRequest struct {
	UserID          int64    `json:"user_id"`
	AnimeID         int64    `json:"anime_id"`
	Status          *string  `json:"status,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
	EpisodesWatched *int     `json:"episodes_watched,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
	IsFavorite      *bool    `json:"is_favorite,omitempty"`
	Origin          string   `json:"origin,omitempty"`
}

// Placeholder builds the optimistic local item shown while the create is in flight.
func (r CreateCollectionRequest) Placeholder(tempID int64, now time.Time) CollectionItem {
	item := CollectionItem{
		ID:        tempID,
		UserID:    r.UserID,
		AnimeID:   r.AnimeID,
		Status:    StatusWatching,
		Rating:    r.Rating,
		Notes:     r.Notes,
		CreatedAt: now,
		UpdatedAt: now,
		Pending:   true,
	}
	if r.Origin == "search" {
		item.Status = StatusPlanToWatch
	}
	if r.Status != nil {
		item.Status = *r.Status
	}
	if r.EpisodesWatched != nil {
		item.EpisodesWatched = *r.EpisodesWatched
	}
	if r.IsFavorite != nil {
		item.IsFavorite = *r.IsFavorite
	}
	return item
}

// CollectionPatch is a merge-patch: nil fields are left out of the body,
// Clear* sends an explicit null.
type CollectionPatch struct {
	Status          *string
	Rating          *float64
	EpisodesWatched *int
	Notes           *string
	IsFavorite      *bool
	ClearRating     bool
	ClearNotes      bool
}

func (p CollectionPatch) IsEmpty() bool {
	return p.Status == nil && p.Rating == nil && p.EpisodesWatched == nil &&
		p.Notes == nil && p.IsFavorite == nil && !p.ClearRating && !p.ClearNotes
}

func (p CollectionPatch) MarshalJSON() ([]byte, error) {
	body := make(map[string]any)
	if p.Status != nil {
		body["status"] = *p.Status
	}
	if p.ClearRating {
		body["rating"] = nil
	} else if p.Rating != nil {
		body["rating"] = *p.Rating
	}
	if p.EpisodesWatched != nil {
		body["episodes_watched"] = *p.EpisodesWatched
	}
	if p.ClearNotes {
		body["notes"] = nil
	} else if p.Notes != nil {
		body["notes"] = *p.Notes
	}
	if p.IsFavorite != nil {
		body["is_favorite"] = *p.IsFavorite
	}
	return json.Marshal(body)
}

// ApplyTo mirrors the server's merge on a local copy.
func (p CollectionPatch) ApplyTo(item *CollectionItem) {
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.ClearRating {
		item.Rating = nil
	} else if p.Rating != nil {
		v := *p.Rating
		item.Rating = &v
	}
	if p.EpisodesWatched != nil {
		item.EpisodesWatched = *p.EpisodesWatched
	}
	if p.ClearNotes {
		item.Notes = nil
	} else if p.Notes != nil {
		v := *p.Notes
		item.Notes = &v
	}
	if p.IsFavorite != nil {
		item.IsFavorite = *p.IsFavorite
	}
}

type DeleteResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}
