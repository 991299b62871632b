// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Role selects which sides of the sync protocol this install serves.
const (
	RolePublisher = "publisher"
	RoleConsumer  = "consumer"
	RoleBoth      = "both"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// Sync role: "publisher", "consumer", or "both"
	Role string

	// Shared secret this site verifies inbound deploys against (consumer role)
	SharedSecret string

	// Replay protection window for signed requests
	ReplayWindow time.Duration

	// Optional bearer token guarding the admin API
	AdminToken string

	// Outbound deploy settings (publisher role)
	DeployTimeout     time.Duration
	DeployConcurrency int

	// Media remap settings (consumer role)
	MediaFetchTimeout time.Duration
	MediaMaxBytes     int64

	// Worker poll interval for queued jobs
	WorkerPollInterval time.Duration

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// S3-compatible object storage for remapped media
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3PublicURL string

	// Optional NATS event bus
	NATSURL string
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing in production mode.
func Load() (*Config, error) {
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		Role:         envOrDefault("SYNC_ROLE", RoleBoth),
		SharedSecret: os.Getenv("SYNC_SHARED_SECRET"),
		AdminToken:   os.Getenv("ADMIN_TOKEN"),

		ReplayWindow:       durationOrDefault("SYNC_REPLAY_WINDOW", 5*time.Minute),
		DeployTimeout:      durationOrDefault("SYNC_DEPLOY_TIMEOUT", 30*time.Second),
		DeployConcurrency:  intOrDefault("SYNC_DEPLOY_CONCURRENCY", 4),
		MediaFetchTimeout:  durationOrDefault("SYNC_MEDIA_TIMEOUT", 15*time.Second),
		MediaMaxBytes:      int64(intOrDefault("SYNC_MEDIA_MAX_BYTES", 50<<20)),
		WorkerPollInterval: durationOrDefault("SYNC_WORKER_POLL", 5*time.Second),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "syncpress"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "syncpress"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    envOrDefault("S3_REGION", "us-east-1"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    envOrDefault("S3_BUCKET", "syncpress-media"),
		S3PublicURL: os.Getenv("S3_PUBLIC_URL"),

		NATSURL: os.Getenv("NATS_URL"),
	}

	switch cfg.Role {
	case RolePublisher, RoleConsumer, RoleBoth:
	default:
		return nil, fmt.Errorf("SYNC_ROLE must be publisher, consumer, or both (got %q)", cfg.Role)
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.ServesConsumer() && cfg.SharedSecret == "" {
			return nil, fmt.Errorf("SYNC_SHARED_SECRET must be set for the consumer role in production")
		}
	}

	return cfg, nil
}

// ServesPublisher reports whether this install exposes the publisher side.
func (c *Config) ServesPublisher() bool {
	return c.Role == RolePublisher || c.Role == RoleBoth
}

// ServesConsumer reports whether this install exposes the consumer side.
func (c *Config) ServesConsumer() bool {
	return c.Role == RoleConsumer || c.Role == RoleBoth
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// durationOrDefault parses a Go duration string from the environment (e.g. "30s").
func durationOrDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// intOrDefault parses an integer from the environment.
func intOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
