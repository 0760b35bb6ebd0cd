package client

// http_client.go = talks to the animetrack HTTP API for the CLI and TUI.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"animetrack/cmd/cli/command/state"
	"animetrack/cmd/cli/dto"
)

const (
	requestTimeout = 10 * time.Second
	listPageSize   = 100
)

// API is the part of the server the collection cache depends on.
type API interface {
	ListCollection(ctx context.Context, userID int64) ([]dto.CollectionItem, error)
	CreateCollectionItem(ctx context.Context, req dto.CreateCollectionRequest) (*dto.CollectionItem, error)
	UpdateCollectionItem(ctx context.Context, itemID int64, patch dto.CollectionPatch) (*dto.CollectionItem, error)
	DeleteCollectionItem(ctx context.Context, itemID int64) error
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	// Existing is the stored item the server returns with a 409.
	Existing *dto.CollectionItem
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }
func IsConflict(err error) bool { return StatusCode(err) == http.StatusConflict }

// ExistingItem returns the stored item carried by a 409, or nil.
func ExistingItem(err error) *dto.CollectionItem {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return apiErr.Existing
	}
	return nil
}

// HTTPClient reads the API URL and bearer token from the session state on
// every call so a login takes effect immediately.
type HTTPClient struct {
	state      *state.AppState
	httpClient *http.Client
}

func NewHTTPClient(st *state.AppState) *HTTPClient {
	return &HTTPClient{
		state: st,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// do sends body as JSON and decodes a 2xx response into out (if non-nil).
// It returns the response headers for callers that need them.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.state.APIURL()+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.state.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, decodeError(resp)
	}
	if out == nil {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.Header, fmt.Errorf("decode response: %w", err)
	}
	return resp.Header, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error    string              `json:"error"`
		Existing *dto.CollectionItem `json:"existing"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error
		apiErr.Existing = body.Existing
	}
	return apiErr
}

// Auth

func (c *HTTPClient) Register(ctx context.Context, request dto.RegisterRequest) (*dto.UserResponse, error) {
	var result dto.UserResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Login(ctx context.Context, request dto.LoginRequest) (*dto.AuthResponse, error) {
	var result dto.AuthResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Me(ctx context.Context) (*dto.UserResponse, error) {
	var result dto.UserResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Collection

// ListCollection pages through the whole collection using X-Total-Count.
func (c *HTTPClient) ListCollection(ctx context.Context, userID int64) ([]dto.CollectionItem, error) {
	all := make([]dto.CollectionItem, 0)
	for skip := 0; ; skip += listPageSize {
		q := url.Values{}
		q.Set("skip", strconv.Itoa(skip))
		q.Set("limit", strconv.Itoa(listPageSize))

		var page []dto.CollectionItem
		header, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/collection/%d?%s", userID, q.Encode()), nil, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		total, convErr := strconv.Atoi(header.Get("X-Total-Count"))
		if len(page) < listPageSize || (convErr == nil && len(all) >= total) {
			return all, nil
		}
	}
}

func (c *HTTPClient) GetCollectionItem(ctx context.Context, itemID int64) (*dto.CollectionItem, error) {
	var result dto.CollectionItem
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/collection/item/%d", itemID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) CreateCollectionItem(ctx context.Context, request dto.CreateCollectionRequest) (*dto.CollectionItem, error) {
	var result dto.CollectionItem
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/collection", request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) UpdateCollectionItem(ctx context.Context, itemID int64, patch dto.CollectionPatch) (*dto.CollectionItem, error) {
	var result dto.CollectionItem
	if _, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/collection/item/%d", itemID), patch, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) DeleteCollectionItem(ctx context.Context, itemID int64) error {
	var result dto.DeleteResponse
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/collection/item/%d", itemID), nil, &result)
	return err
}

// Anime metadata

// RefreshMetadata asks the server to re-fetch the item's upstream snapshot.
func (c *HTTPClient) RefreshMetadata(ctx context.Context, itemID int64) (*dto.CollectionItem, error) {
	var result dto.CollectionItem
	if _, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/collection/item/%d/metadata", itemID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) SearchAnime(ctx context.Context, query string, page int) (*dto.SearchPage, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("page", strconv.Itoa(page))

	var result dto.SearchPage
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/anime/search?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Trending(ctx context.Context, page int) (*dto.SearchPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))

	var result dto.SearchPage
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/anime/trending?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) GetAnime(ctx context.Context, animeID int64) (*dto.AnimeMetadata, error) {
	var result dto.AnimeMetadata
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/anime/%d", animeID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
