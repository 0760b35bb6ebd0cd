package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"animetrack/internal/microservices/http-api/dto"
	"animetrack/internal/microservices/http-api/middleware"
	"animetrack/internal/microservices/http-api/models"
	"animetrack/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

const (
	requestTimeout = 5 * time.Second
	// refresh waits on the upstream source
	refreshTimeout = 15 * time.Second
)

// CollectionHandler binds CollectionService to HTTP.
type CollectionHandler struct {
	collectionService service.CollectionService
	errors            *ErrorResponder
	// enforceOwner makes every route check the token's user against the
	// collection owner.
	enforceOwner bool
}

func NewCollectionHandler(collectionService service.CollectionService, responder *ErrorResponder, enforceOwner bool) *CollectionHandler {
	return &CollectionHandler{
		collectionService: collectionService,
		errors:            responder,
		enforceOwner:      enforceOwner,
	}
}

// List handles GET /collection/:user_id?skip=&limit=
func (h *CollectionHandler) List(c *gin.Context) {
	userID, err := parseID(c, "user_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if !h.allowed(c, userID) {
		return
	}

	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid skip"})
		return
	}
	limit, err := queryInt(c, "limit", service.DefaultListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	items, err := h.collectionService.ListForUser(ctx, userID, skip, limit)
	if err != nil {
		h.errors.Respond(c, err)
		return
	}
	total, err := h.collectionService.CountForUser(ctx, userID)
	if err != nil {
		h.errors.Respond(c, err)
		return
	}

	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, items)
}

// Get handles GET /collection/item/:item_id
func (h *CollectionHandler) Get(c *gin.Context) {
	itemID, err := parseID(c, "item_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	item, err := h.collectionService.GetByID(ctx, itemID)
	if err != nil {
		h.errors.Respond(c, err)
		return
	}
	if !h.allowed(c, item.UserID) {
		return
	}

	c.JSON(http.StatusOK, item)
}

// Create handles POST /collection
func (h *CollectionHandler) Create(c *gin.Context) {
	var req dto.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.allowed(c, req.UserID) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	item, err := h.collectionService.Create(ctx, req.UserID, req.AnimeID, req.Fields())
	if err != nil {
		h.errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// Update handles PATCH /collection/item/:item_id with a merge-patch body.
func (h *CollectionHandler) Update(c *gin.Context) {
	itemID, err := parseID(c, "item_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	var patch models.CollectionPatch
	if err := json.NewDecoder(c.Request.Body).Decode(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if h.enforceOwner && !h.ownsItem(ctx, c, itemID) {
		return
	}

	item, err := h.collectionService.Update(ctx, itemID, patch)
	if err != nil {
		h.errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// Delete handles DELETE /collection/item/:item_id
func (h *CollectionHandler) Delete(c *gin.Context) {
	itemID, err := parseID(c, "item_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if h.enforceOwner && !h.ownsItem(ctx, c, itemID) {
		return
	}

	if err := h.collectionService.Remove(ctx, itemID); err != nil {
		h.errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.DeleteResponse{Status: "deleted", ID: itemID})
}

// RefreshMetadata handles POST /collection/item/:item_id/metadata
func (h *CollectionHandler) RefreshMetadata(c *gin.Context) {
	itemID, err := parseID(c, "item_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), refreshTimeout)
	defer cancel()

	if h.enforceOwner && !h.ownsItem(ctx, c, itemID) {
		return
	}

	item, err := h.collectionService.RefreshMetadata(ctx, itemID)
	if err != nil {
		h.errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// allowed writes 403 and returns false when ownership is enforced and the
// caller is neither the owner nor an admin.
func (h *CollectionHandler) allowed(c *gin.Context, ownerID int64) bool {
	if !h.enforceOwner || middleware.IsAdmin(c) {
		return true
	}
	callerID, ok := middleware.UserID(c)
	if !ok || callerID != ownerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to access this collection"})
		return false
	}
	return true
}

func (h *CollectionHandler) ownsItem(ctx context.Context, c *gin.Context, itemID int64) bool {
	item, err := h.collectionService.GetByID(ctx, itemID)
	if err != nil {
		h.errors.Respond(c, err)
		return false
	}
	return h.allowed(c, item.UserID)
}

// ErrorResponder maps service errors to HTTP responses. In production the
// body of a 500 carries no detail.
type ErrorResponder struct {
	production bool
	logger     *slog.Logger
}

func NewErrorResponder(production bool, logger *slog.Logger) *ErrorResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorResponder{production: production, logger: logger}
}

func (r *ErrorResponder) Respond(c *gin.Context, err error) {
	var (
		conflict   *service.ConflictError
		validation *service.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, dto.ConflictResponse{Error: err.Error(), Existing: conflict.Existing})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, dto.ConflictResponse{Error: err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, dto.ValidationResponse{Error: service.ErrValidation.Error(), Fields: validation.Fields})
	case errors.Is(err, service.ErrNoOp), errors.Is(err, service.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "collection item not found"})
	case errors.Is(err, service.ErrAnimeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "anime not found"})
	case errors.Is(err, service.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "metadata source unavailable"})
	default:
		_ = c.Error(err)
		r.logger.Error("request_failed",
			"path", c.FullPath(),
			"request_id", c.GetString(middleware.ContextRequestID),
			"error", err,
		)
		if r.production {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "detail": err.Error()})
	}
}

func parseID(c *gin.Context, param string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
