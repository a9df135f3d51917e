// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into strongly-typed
Go structs, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Two schemas live here: [Config] for the comment API server and [ClientConfig]
for the terminal thread viewer. Both are read-only once loaded and are passed
to components through constructors.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Store Drivers

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// # Configuration Schema

// Config holds all runtime configuration for the Quill comment API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// StoreDriver selects the comment repository ("postgres" or "memory").
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis). Empty disables the comment page cache.
	RedisURL        string        `env:"REDIS_URL"`
	CommentCacheTTL time.Duration `env:"COMMENT_CACHE_TTL" envDefault:"30s"`

	// Token verification. The private key is only needed to mint tokens.
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`

	// Cross-Origin Resource Sharing
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX" envDefault:"quill.app"`
}

// ClientConfig holds the settings of the terminal thread viewer.
type ClientConfig struct {
	APIURL      string        `env:"API_URL"      envDefault:"http://localhost:8080/api/v1"`
	AccessToken string        `env:"ACCESS_TOKEN"`
	ReplyDepth  int           `env:"REPLY_DEPTH"  envDefault:"2"`
	PageSize    int           `env:"PAGE_SIZE"    envDefault:"20"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	LoginURL    string        `env:"LOGIN_URL"    envDefault:"https://quill.app/login"`
	Debug       bool          `env:"DEBUG"        envDefault:"false"`

	// PrefetchDepth is how many reply levels the first listing carries; 0 loads none.
	PrefetchDepth int `env:"PREFETCH_DEPTH" envDefault:"0"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("config: DATABASE_URL is required for the %q store driver", cfg.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

// LoadClient parses QUILL_-prefixed environment variables into a [ClientConfig].
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "QUILL_"}); err != nil {
		return nil, fmt.Errorf("config: failed to parse client environment: %w", err)
	}

	if cfg.ReplyDepth < 1 {
		return nil, fmt.Errorf("config: QUILL_REPLY_DEPTH must be at least 1, got %d", cfg.ReplyDepth)
	}
	if cfg.PrefetchDepth < 0 {
		return nil, fmt.Errorf("config: QUILL_PREFETCH_DEPTH must not be negative, got %d", cfg.PrefetchDepth)
	}
	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("config: QUILL_PAGE_SIZE must be at least 1, got %d", cfg.PageSize)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// OriginSuffix returns the domain suffix accepted by the CORS middleware outside development.
func (c *Config) OriginSuffix() string {
	return c.AllowedOriginSuffix
}
