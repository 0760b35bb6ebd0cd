package handler

import (
	"context"
	"net/http"
	"time"

	"animetrack/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

// upstream calls may retry, so they get more time than store calls
const upstreamTimeout = 15 * time.Second

type AnimeHandler struct {
	animeService service.AnimeService
	errors       *ErrorResponder
}

func NewAnimeHandler(animeService service.AnimeService, responder *ErrorResponder) *AnimeHandler {
	return &AnimeHandler{animeService: animeService, errors: responder}
}

// Search handles GET /anime/search?q=&page=
func (h *AnimeHandler) Search(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), upstreamTimeout)
	defer cancel()

	res, err := h.animeService.Search(ctx, c.Query("q"), page)
	if err != nil {
		h.errors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Trending handles GET /anime/trending?page=
func (h *AnimeHandler) Trending(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), upstreamTimeout)
	defer cancel()

	res, err := h.animeService.Trending(ctx, page)
	if err != nil {
		h.errors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Get handles GET /anime/:anime_id
func (h *AnimeHandler) Get(c *gin.Context) {
	animeID, err := parseID(c, "anime_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anime id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), upstreamTimeout)
	defer cancel()

	meta, err := h.animeService.Get(ctx, animeID)
	if err != nil {
		h.errors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}
