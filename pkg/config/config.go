// Package config loads pgsearch configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process configuration for applications embedding
// pgsearch.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Cache configuration
	Cache CacheConfig

	// Refresh configuration
	Refresh RefreshConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
	Timeout     time.Duration
}

// CacheConfig holds the optional Redis result cache settings.
type CacheConfig struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

// RefreshConfig holds the periodic view refresh settings.
type RefreshConfig struct {
	Enabled  bool
	Schedule string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL:         getEnv("PGSEARCH_DATABASE_URL", ""),
			MaxConns:    getEnvInt("PGSEARCH_DATABASE_MAX_CONNS", 10),
			MinConns:    getEnvInt("PGSEARCH_DATABASE_MIN_CONNS", 2),
			MaxLifetime: getEnvDuration("PGSEARCH_DATABASE_MAX_LIFETIME", time.Hour),
			Timeout:     getEnvDuration("PGSEARCH_DATABASE_TIMEOUT", 10*time.Second),
		},
		Cache: CacheConfig{
			Enabled:  getEnvBool("PGSEARCH_CACHE_ENABLED", false),
			RedisURL: getEnv("PGSEARCH_REDIS_URL", "redis://localhost:6379/0"),
			TTL:      getEnvDuration("PGSEARCH_CACHE_TTL", 5*time.Minute),
		},
		Refresh: RefreshConfig{
			Enabled:  getEnvBool("PGSEARCH_REFRESH_ENABLED", false),
			Schedule: getEnv("PGSEARCH_REFRESH_SCHEDULE", "@every 5m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("PGSEARCH_LOG_LEVEL", "info"),
			MetricsEnabled: getEnvBool("PGSEARCH_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the cache is enabled")
	}
	if c.Refresh.Enabled && c.Refresh.Schedule == "" {
		return fmt.Errorf("refresh schedule is required when periodic refresh is enabled")
	}
	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Observability.LogLevel)
	}
	return nil
}

// getEnv returns a string environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
