package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"animetrack/internal/config"
	"animetrack/internal/logger"
	httpapi "animetrack/internal/microservices/http-api"
	"animetrack/internal/microservices/http-api/repository"
	"animetrack/internal/microservices/http-api/service"
	"animetrack/internal/search"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := httpapi.Deps{
		AuthRequired: cfg.AuthRequired,
		Production:   cfg.IsProduction(),
		Logger:       logger,
	}

	store, err := repository.OpenStore(cfg, logger)
	if err != nil {
		logger.Error("store_open_failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if store.DB != nil && cfg.JWTSecret != "" {
		deps.Auth = service.NewAuthService(repository.NewUserRepository(store.DB), cfg.JWTSecret, cfg.AccessTokenTTL, logger)
	}

	// Metadata providers
	source, err := search.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("metadata_setup_failed", "error", err)
		os.Exit(1)
	}

	opts := []service.CollectionOption{service.WithLogger(logger)}
	if source != nil {
		deps.Anime = service.NewAnimeService(source)
		opts = append(opts,
			service.WithMetadata(source),
			service.WithCreateEnrichment(cfg.EnrichOnCreate),
		)
	}
	deps.Collection = service.NewCollectionService(store.Collection, opts...)

	router := httpapi.NewRouter(deps)

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Total-Count", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})(router)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting_http_server",
			"addr", cfg.Addr(),
			"env", cfg.GoEnv,
			"store", cfg.StoreDriver,
			"auth_required", cfg.AuthRequired,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("received_shutdown_signal")
	case err := <-errChan:
		logger.Error("server_error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
		return
	}
	logger.Info("server_stopped_gracefully")
}
