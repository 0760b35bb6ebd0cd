package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"animetrack/internal/shared"

	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL = "https://graphql.anilist.co"

	// Rate limiting: AniList allows ~90 requests per minute
	rateLimit = 1 // 1 requests per second = 60/min
	rateBurst = 5

	// Retry configuration
	maxRetries   = 5
	initialDelay = 1 * time.Second
	maxDelay     = 32 * time.Second

	defaultPerPage = 20
)

// Client handles GraphQL API requests with rate limiting
type Client struct {
	apiURL       string
	httpClient   *http.Client
	rateLimiter  *rate.Limiter
	maxRetries   int
	initialDelay time.Duration
	logger       *slog.Logger
}

type Option func(*Client)

func WithAPIURL(url string) Option {
	return func(c *Client) { c.apiURL = strings.TrimRight(url, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry overrides the retry budget and the first backoff delay.
func WithRetry(retries int, firstDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = retries
		c.initialDelay = firstDelay
	}
}

func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.rateLimiter = rate.NewLimiter(limit, burst) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new AniList API client
func NewClient(opts ...Option) *Client {
	c := &Client{
		apiURL:       DefaultAPIURL,
		rateLimiter:  rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		logger:       slog.Default(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "anilist" }

const mediaFields = `
	id
	idMal
	title {
		english
		romaji
		native
	}
	description(asHtml: false)
	episodes
	averageScore
	coverImage {
		large
		medium
	}
`

// SearchAnime runs a title search. Entries without a MyAnimeList id are
// skipped since they cannot be saved to a collection.
func (c *Client) SearchAnime(ctx context.Context, query string, page int) (*shared.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	gql := `
	query ($search: String, $page: Int, $perPage: Int) {
		Page(page: $page, perPage: $perPage) {
			pageInfo {
				currentPage
				hasNextPage
			}
			media(search: $search, type: ANIME) {` + mediaFields + `}
		}
	}
	`
	variables := map[string]interface{}{
		"search":  query,
		"page":    page,
		"perPage": defaultPerPage,
	}

	out, err := c.mediaPage(ctx, gql, variables)
	if err != nil {
		return nil, fmt.Errorf("anilist search %q: %w", query, err)
	}
	out.Query = query
	return out, nil
}

// Trending lists what is trending on AniList right now.
func (c *Client) Trending(ctx context.Context, page int) (*shared.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	gql := `
	query ($page: Int, $perPage: Int) {
		Page(page: $page, perPage: $perPage) {
			pageInfo {
				currentPage
				hasNextPage
			}
			media(sort: TRENDING_DESC, type: ANIME) {` + mediaFields + `}
		}
	}
	`
	variables := map[string]interface{}{
		"page":    page,
		"perPage": defaultPerPage,
	}

	out, err := c.mediaPage(ctx, gql, variables)
	if err != nil {
		return nil, fmt.Errorf("anilist trending: %w", err)
	}
	return out, nil
}

func (c *Client) mediaPage(ctx context.Context, gql string, variables map[string]interface{}) (*shared.SearchPage, error) {
	var result PageResponse
	if err := c.doRequest(ctx, gql, variables, &result); err != nil {
		return nil, err
	}

	out := &shared.SearchPage{
		Page:        variables["page"].(int),
		HasNextPage: result.Page.PageInfo.HasNextPage,
		Results:     make([]shared.AnimeMetadata, 0, len(result.Page.Media)),
	}
	for _, m := range result.Page.Media {
		if meta, ok := m.toMetadata(); ok {
			out.Results = append(out.Results, meta)
		}
	}
	return out, nil
}

// GetAnime looks an anime up by its MyAnimeList id.
func (c *Client) GetAnime(ctx context.Context, malID int64) (*shared.AnimeMetadata, error) {
	gql := `
	query ($idMal: Int) {
		Media(idMal: $idMal, type: ANIME) {` + mediaFields + `}
	}
	`
	variables := map[string]interface{}{"idMal": malID}

	var result MediaResponse
	if err := c.doRequest(ctx, gql, variables, &result); err != nil {
		return nil, fmt.Errorf("anilist anime %d: %w", malID, err)
	}
	if result.Media == nil {
		return nil, fmt.Errorf("anilist anime %d: %w", malID, shared.ErrAnimeNotFound)
	}
	meta, ok := result.Media.toMetadata()
	if !ok {
		return nil, fmt.Errorf("anilist anime %d: %w", malID, shared.ErrAnimeNotFound)
	}
	return &meta, nil
}

// doRequest performs a GraphQL request with rate limiting and retry logic
func (c *Client) doRequest(ctx context.Context, query string, variables map[string]interface{}, result interface{}) error {
	bodyJSON, err := json.Marshal(GraphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	delay := c.initialDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", shared.ErrUpstreamUnavailable, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(bodyJSON))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries && ctx.Err() == nil {
				c.logger.Warn("anilist_request_retry", "attempt", attempt+1, "error", err, "delay", delay)
				if err := sleep(ctx, delay); err != nil {
					break
				}
				delay = min(delay*2, maxDelay)
				continue
			}
			break
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: read response: %w", shared.ErrUpstreamUnavailable, err)
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(respBody))
			if shouldRetry(resp.StatusCode) && attempt < c.maxRetries {
				if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
					if secs, err := strconv.Atoi(retryAfter); err == nil {
						delay = time.Duration(secs) * time.Second
					}
				}
				c.logger.Warn("anilist_request_retry", "attempt", attempt+1, "status", resp.StatusCode, "delay", delay)
				if err := sleep(ctx, delay); err != nil {
					break
				}
				delay = min(delay*2, maxDelay)
				continue
			}
			if resp.StatusCode == http.StatusNotFound {
				// AniList answers 404 for a Media query with no match
				return shared.ErrAnimeNotFound
			}
			break
		}

		var gqlResp GraphQLResponse
		if err := json.Unmarshal(respBody, &gqlResp); err != nil {
			return fmt.Errorf("%w: parse GraphQL response: %w", shared.ErrUpstreamUnavailable, err)
		}
		if len(gqlResp.Errors) > 0 {
			msgs := make([]string, len(gqlResp.Errors))
			for i, e := range gqlResp.Errors {
				if e.Status == http.StatusNotFound {
					return shared.ErrAnimeNotFound
				}
				msgs[i] = e.Message
			}
			return fmt.Errorf("%w: GraphQL errors: %v", shared.ErrUpstreamUnavailable, msgs)
		}
		if err := json.Unmarshal(gqlResp.Data, result); err != nil {
			return fmt.Errorf("%w: parse data: %w", shared.ErrUpstreamUnavailable, err)
		}
		return nil
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

// shouldRetry determines if an HTTP status code warrants a retry
func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
