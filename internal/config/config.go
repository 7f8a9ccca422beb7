// Package config provides centralized configuration management for evesync.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Lock     LockConfig
	API      APIConfig
	Poll     PollConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response. A manual
	// poll can take minutes (default: 0, disabled)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 10m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"10m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the backend: postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the connection string or, for sqlite, the file path (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RedisConfig holds the Redis connection used by the redis lock backend.
type RedisConfig struct {
	// Addr is host:port of the Redis server (default: localhost:6379)
	Addr string `env:"REDIS_ADDR" default:"localhost:6379"`

	// Password authenticates to Redis (default: none)
	Password string `env:"REDIS_PASSWORD"`

	// DB selects the Redis database (default: 0)
	DB int `env:"REDIS_DB" default:"0"`
}

// LockConfig holds single-flight lock settings.
type LockConfig struct {
	// Backend is where locks are kept: sql or redis (default: sql)
	Backend string `env:"LOCK_BACKEND" default:"sql"`

	// StaleAfter is how old a lock must be before the reaper removes it (default: 15m)
	StaleAfter time.Duration `env:"LOCK_STALE_AFTER" default:"15m"`

	// ReapInterval is how often the reaper runs (default: 1m)
	ReapInterval time.Duration `env:"LOCK_REAP_INTERVAL" default:"1m"`
}

// APIConfig holds settings for the remote XML API.
type APIConfig struct {
	// BaseURL is the root of the remote API (default: https://api.eveonline.com)
	BaseURL string `env:"API_BASE_URL" default:"https://api.eveonline.com"`

	// Timeout bounds a single request (default: 30s)
	Timeout time.Duration `env:"API_TIMEOUT" default:"30s"`

	// RetryAttempts is the number of tries for retryable failures (default: 3)
	RetryAttempts int `env:"API_RETRY_ATTEMPTS" default:"3"`

	// RetryBackoff is the first retry delay, doubled per attempt (default: 500ms)
	RetryBackoff time.Duration `env:"API_RETRY_BACKOFF" default:"500ms"`

	// UserAgent identifies this client to the remote API (default: evesync)
	UserAgent string `env:"API_USER_AGENT" default:"evesync"`
}

// PollConfig holds poll scheduling settings.
type PollConfig struct {
	// Enabled starts the background poll scheduler with the server (default: true)
	Enabled bool `env:"POLL_ENABLED" default:"true"`

	// Interval is how often every planned resource is checked (default: 1m)
	Interval time.Duration `env:"POLL_INTERVAL" default:"1m"`

	// Concurrency is the number of cycles run at once (default: 4)
	Concurrency int `env:"POLL_CONCURRENCY" default:"4"`

	// MaxWait is how long a cycle waits for a free slot (default: 30s)
	MaxWait time.Duration `env:"POLL_MAX_WAIT" default:"30s"`

	// FallbackInterval is the cache interval when a document gives none (default: 5m)
	FallbackInterval time.Duration `env:"POLL_FALLBACK_INTERVAL" default:"5m"`

	// ArchiveValid keeps the last valid raw document per resource (default: false)
	ArchiveValid bool `env:"POLL_ARCHIVE_VALID" default:"false"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// PollLimit is requests per minute for manual poll endpoints (default: 10)
	PollLimit int `env:"RATE_LIMIT_POLL" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key authentication (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
