package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// HTTP
	HTTPHost string `env:"HTTP_HOST" default:"0.0.0.0"`
	HTTPPort int    `env:"HTTP_PORT" default:"8080"`

	// Store
	StoreDriver string `env:"STORE_DRIVER" default:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL" default:"./data/animetrack.db"`
	BoltPath    string `env:"BOLT_PATH" default:"./data/animetrack.bolt"`

	// Authentication
	AuthRequired   bool          `env:"AUTH_REQUIRED" default:"false"`
	JWTSecret      string        `env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" default:"24h"`

	// Redis Cache (metadata lookups); empty URL disables it
	RedisURL      string        `env:"REDIS_URL"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"CACHE_TTL" default:"1h"`

	// External APIs
	MetadataProviders []string      `env:"METADATA_PROVIDERS" default:"jikan,anilist"`
	JikanAPIURL       string        `env:"JIKAN_API_URL" default:"https://api.jikan.moe/v4"`
	AniListAPIURL     string        `env:"ANILIST_API_URL" default:"https://graphql.anilist.co"`
	UpstreamTimeout   time.Duration `env:"UPSTREAM_TIMEOUT" default:"10s"`
	EnrichOnCreate    bool          `env:"ENRICH_ON_CREATE" default:"true"`

	// Metadata backfill
	BackfillWorkers   int           `env:"BACKFILL_WORKERS" default:"4"`
	BackfillBatchSize int           `env:"BACKFILL_BATCH_SIZE" default:"50"`
	BackfillInterval  time.Duration `env:"BACKFILL_INTERVAL" default:"0"` // 0 runs once

	// Development
	LogLevel    string   `env:"LOG_LEVEL" default:"info"`
	LogFormat   string   `env:"LOG_FORMAT" default:"text"`
	CORSOrigins []string `env:"CORS_ORIGINS" default:"http://localhost:3000"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; system env vars still apply
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	// HTTP
	if err := loadEnvString(&config.HTTPHost, "HTTP_HOST", "0.0.0.0"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 8080); err != nil {
		return nil, err
	}

	// Store
	if err := loadEnvString(&config.StoreDriver, "STORE_DRIVER", "sqlite"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.DatabaseURL, "DATABASE_URL", "./data/animetrack.db"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.BoltPath, "BOLT_PATH", "./data/animetrack.bolt"); err != nil {
		return nil, err
	}

	// Authentication
	if err := loadEnvBool(&config.AuthRequired, "AUTH_REQUIRED", false); err != nil {
		return nil, err
	}
	if config.AuthRequired {
		if err := loadEnvStringRequired(&config.JWTSecret, "JWT_SECRET"); err != nil {
			return nil, err
		}
	} else if err := loadEnvString(&config.JWTSecret, "JWT_SECRET", ""); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.AccessTokenTTL, "ACCESS_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	// Redis
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.CacheTTL, "CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}

	// External APIs
	if err := loadEnvStringSlice(&config.MetadataProviders, "METADATA_PROVIDERS", []string{"jikan", "anilist"}); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.JikanAPIURL, "JIKAN_API_URL", "https://api.jikan.moe/v4"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.AniListAPIURL, "ANILIST_API_URL", "https://graphql.anilist.co"); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.UpstreamTimeout, "UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&config.EnrichOnCreate, "ENRICH_ON_CREATE", true); err != nil {
		return nil, err
	}

	// Metadata backfill
	if err := loadEnvInt(&config.BackfillWorkers, "BACKFILL_WORKERS", 4); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.BackfillBatchSize, "BACKFILL_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.BackfillInterval, "BACKFILL_INTERVAL", 0); err != nil {
		return nil, err
	}

	// Development
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "text"); err != nil {
		return nil, err
	}
	if err := loadEnvStringSlice(&config.CORSOrigins, "CORS_ORIGINS", []string{"http://localhost:3000"}); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvStringRequired(target *string, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return fmt.Errorf("required environment variable %s is not set", key)
	}
	*target = value
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvStringSlice(target *[]string, key string, defaultValue []string) error {
	if value := os.Getenv(key); value != "" {
		out := make([]string, 0)
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		*target = out
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 1 and 65535")
	}

	validDrivers := []string{"sqlite", "postgres", "bolt"}
	if !contains(validDrivers, c.StoreDriver) {
		errors = append(errors, fmt.Sprintf("STORE_DRIVER must be one of: %s", strings.Join(validDrivers, ", ")))
	}
	if c.StoreDriver != "bolt" && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required for SQL stores")
	}

	if c.AuthRequired {
		// accounts live in the SQL store
		if c.StoreDriver == "bolt" {
			errors = append(errors, "AUTH_REQUIRED needs a SQL store (sqlite or postgres)")
		}
		if len(c.JWTSecret) < 32 {
			errors = append(errors, "JWT_SECRET should be at least 32 characters long")
		}
	}

	validProviders := []string{"jikan", "anilist"}
	for _, p := range c.MetadataProviders {
		if !contains(validProviders, p) {
			errors = append(errors, fmt.Sprintf("METADATA_PROVIDERS entries must be one of: %s", strings.Join(validProviders, ", ")))
			break
		}
	}

	if c.BackfillWorkers < 1 {
		errors = append(errors, "BACKFILL_WORKERS must be at least 1")
	}
	if c.BackfillBatchSize < 1 || c.BackfillBatchSize > 100 {
		errors = append(errors, "BACKFILL_BATCH_SIZE must be between 1 and 100")
	}
	if c.BackfillInterval < 0 {
		errors = append(errors, "BACKFILL_INTERVAL must not be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
