package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"animetrack/internal/microservices/http-api/handler"
	"animetrack/internal/microservices/http-api/middleware"
	"animetrack/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the router wires into handlers. Anime and
// Auth are optional; their routes are skipped when nil.
type Deps struct {
	Collection   service.CollectionService
	Anime        service.AnimeService
	Auth         service.AuthService
	AuthRequired bool
	Production   bool
	Logger       *slog.Logger
}

// NewRouter builds the gin engine with every API route.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(d.Logger))

	responder := handler.NewErrorResponder(d.Production, d.Logger)

	r.GET("/check-conn", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := d.Collection.Ping(ctx); err != nil {
			d.Logger.Error("health_check_failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	var authMW gin.HandlerFunc
	if d.Auth != nil {
		authHandler := handler.NewAuthHandler(d.Auth, responder)
		authMW = middleware.AuthMiddleware(d.Auth)

		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", authMW, authHandler.Me)
		}
	}

	enforce := d.AuthRequired && authMW != nil
	collection := handler.NewCollectionHandler(d.Collection, responder, enforce)

	read := []gin.HandlerFunc{}
	write := []gin.HandlerFunc{}
	if enforce {
		read = append(read, middleware.RequireScopes(service.ScopeReadCollection))
		write = append(write, middleware.RequireScopes(service.ScopeWriteCollection))
	}

	cg := api.Group("/collection")
	if enforce {
		cg.Use(authMW)
	}
	{
		cg.GET("/:user_id", append(read, collection.List)...)
		cg.GET("/item/:item_id", append(read, collection.Get)...)
		cg.POST("", append(write, collection.Create)...)
		cg.POST("/", append(write, collection.Create)...)
		cg.PATCH("/item/:item_id", append(write, collection.Update)...)
		cg.DELETE("/item/:item_id", append(write, collection.Delete)...)
		cg.POST("/item/:item_id/metadata", append(write, collection.RefreshMetadata)...)
	}

	if d.Anime != nil {
		animeHandler := handler.NewAnimeHandler(d.Anime, responder)
		ag := api.Group("/anime")
		{
			ag.GET("/search", animeHandler.Search)
			ag.GET("/trending", animeHandler.Trending)
			ag.GET("/:anime_id", animeHandler.Get)
		}
	}

	return r
}
