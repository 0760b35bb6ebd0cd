// Package jikan is a client for the Jikan REST API (an unofficial
// MyAnimeList mirror). Anime ids are MyAnimeList ids.
package jikan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"animetrack/internal/shared"

	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL = "https://api.jikan.moe/v4"

	// Jikan allows 3 requests per second and 60 per minute
	rateLimit = 3
	rateBurst = 3

	maxRetries   = 3
	initialDelay = 1 * time.Second
	maxDelay     = 16 * time.Second
)

type Client struct {
	apiURL       string
	httpClient   *http.Client
	rateLimiter  *rate.Limiter
	maxRetries   int
	initialDelay time.Duration
	logger       *slog.Logger
}

type Option func(*Client)

func WithAPIURL(u string) Option {
	return func(c *Client) { c.apiURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetry(retries int, firstDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = retries
		c.initialDelay = firstDelay
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		apiURL:       DefaultAPIURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		rateLimiter:  rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "jikan" }

type animeData struct {
	MalID    int64    `json:"mal_id"`
	Title    string   `json:"title"`
	TitleEn  *string  `json:"title_english"`
	Synopsis *string  `json:"synopsis"`
	Episodes *int     `json:"episodes"`
	Score    *float64 `json:"score"`
	Images   struct {
		JPG struct {
			ImageURL      string `json:"image_url"`
			LargeImageURL string `json:"large_image_url"`
		} `json:"jpg"`
	} `json:"images"`
}

func (a animeData) toMetadata() shared.AnimeMetadata {
	meta := shared.AnimeMetadata{
		AnimeID:  a.MalID,
		Title:    a.Title,
		Episodes: a.Episodes,
		Score:    a.Score,
		Source:   "jikan",
	}
	if a.TitleEn != nil && *a.TitleEn != "" {
		meta.Title = *a.TitleEn
	}
	if a.Synopsis != nil {
		meta.Synopsis = strings.TrimSpace(*a.Synopsis)
	}
	meta.ImageURL = a.Images.JPG.LargeImageURL
	if meta.ImageURL == "" {
		meta.ImageURL = a.Images.JPG.ImageURL
	}
	return meta
}

type searchResponse struct {
	Data       []animeData `json:"data"`
	Pagination struct {
		CurrentPage     int  `json:"current_page"`
		HasNextPage     bool `json:"has_next_page"`
		LastVisiblePage int  `json:"last_visible_page"`
	} `json:"pagination"`
}

type animeResponse struct {
	Data *animeData `json:"data"`
}

// SearchAnime calls GET /anime?q=&page=.
func (c *Client) SearchAnime(ctx context.Context, query string, page int) (*shared.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("sfw", "true")

	var resp searchResponse
	if err := c.get(ctx, "/anime?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("jikan search %q: %w", query, err)
	}
	out := resp.toPage(page)
	out.Query = query
	return out, nil
}

// Trending calls GET /top/anime?filter=airing, Jikan's closest match to a
// trending list.
func (c *Client) Trending(ctx context.Context, page int) (*shared.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("filter", "airing")
	params.Set("page", strconv.Itoa(page))
	params.Set("sfw", "true")

	var resp searchResponse
	if err := c.get(ctx, "/top/anime?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("jikan trending: %w", err)
	}
	return resp.toPage(page), nil
}

func (r searchResponse) toPage(page int) *shared.SearchPage {
	out := &shared.SearchPage{
		Page:        page,
		HasNextPage: r.Pagination.HasNextPage,
		Results:     make([]shared.AnimeMetadata, 0, len(r.Data)),
	}
	for _, a := range r.Data {
		out.Results = append(out.Results, a.toMetadata())
	}
	return out
}

// GetAnime calls GET /anime/{id}.
func (c *Client) GetAnime(ctx context.Context, malID int64) (*shared.AnimeMetadata, error) {
	var resp animeResponse
	if err := c.get(ctx, fmt.Sprintf("/anime/%d", malID), &resp); err != nil {
		return nil, fmt.Errorf("jikan anime %d: %w", malID, err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("jikan anime %d: %w", malID, shared.ErrAnimeNotFound)
	}
	meta := resp.Data.toMetadata()
	return &meta, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	var lastErr error
	delay := c.initialDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("jikan_request_retry", "attempt", attempt, "path", path, "error", lastErr, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				break
			}
			delay = min(delay*2, maxDelay)
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("%w: decode response: %w", shared.ErrUpstreamUnavailable, err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return shared.ErrAnimeNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				delay = time.Duration(secs) * time.Second
			}
			continue
		default:
			return fmt.Errorf("%w: HTTP %d", shared.ErrUpstreamUnavailable, resp.StatusCode)
		}
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return fmt.Errorf("%w: %w", shared.ErrUpstreamUnavailable, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
