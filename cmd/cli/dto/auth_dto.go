package dto

import (
	"strconv"
	"time"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	ExpiresIn   int64  `json:"expires_in"`
}

type UserResponse struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Anime metadata proxied from the upstream providers
type AnimeMetadata struct {
	AnimeID  int64    `json:"anime_id"`
	Title    string   `json:"title"`
	Synopsis string   `json:"synopsis,omitempty"`
	Episodes *int     `json:"episodes,omitempty"`
	Score    *float64 `json:"score,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Source   string   `json:"source"`
}

type SearchPage struct {
	Query       string          `json:"query"`
	Page        int             `json:"page"`
	HasNextPage bool            `json:"has_next_page"`
	Results     []AnimeMetadata `json:"results"`
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
