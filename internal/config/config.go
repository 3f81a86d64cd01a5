// Package config provides centralized configuration management for the application.
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
	Store    StoreConfig
	Ingest   IngestConfig
	Watch    WatchConfig
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

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE and websockets)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig holds database connection settings.
type StoreConfig struct {
	// Driver selects the backend: postgres or sqlite (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string (required for postgres)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file for the sqlite driver (default: labingest.db)
	SQLitePath string `env:"SQLITE_PATH" default:"labingest.db"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate creates adapter tables at startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// IngestConfig holds batch ingestion settings.
type IngestConfig struct {
	// MaxConcurrentJobs caps jobs running across all folder pairs (default: 4)
	MaxConcurrentJobs int `env:"INGEST_MAX_CONCURRENT_JOBS" default:"4"`

	// MaxFileSize is the largest export read into memory, in bytes (default: 100MB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"104857600"`

	// FileTimeout bounds parse and persist of one file (default: 5m)
	FileTimeout time.Duration `env:"INGEST_FILE_TIMEOUT" default:"5m"`

	// ErrorPolicy is skip (record and continue) or halt (stop the run) (default: skip)
	ErrorPolicy string `env:"INGEST_ERROR_POLICY" default:"skip"`

	// PersistRetries is how many times a transient store error is retried (default: 3)
	PersistRetries int `env:"INGEST_PERSIST_RETRIES" default:"3"`

	// RetryInitialInterval is the first backoff delay (default: 500ms)
	RetryInitialInterval time.Duration `env:"INGEST_RETRY_INITIAL_INTERVAL" default:"500ms"`

	// RetryMaxInterval caps the backoff delay (default: 5s)
	RetryMaxInterval time.Duration `env:"INGEST_RETRY_MAX_INTERVAL" default:"5s"`

	// JobRetention is how long finished jobs stay pollable (default: 30m)
	JobRetention time.Duration `env:"INGEST_JOB_RETENTION" default:"30m"`

	// ProfilesFile is the YAML file with watch folders and filter overrides
	ProfilesFile string `env:"INGEST_PROFILES_FILE" default:"profiles.yaml"`
}

// WatchConfig holds scheduled trigger settings.
type WatchConfig struct {
	// Enabled starts the watch scheduler with the server (default: false)
	Enabled bool `env:"WATCH_ENABLED" default:"false"`

	// Interval is how often every watch folder is scanned (default: 5m)
	Interval time.Duration `env:"WATCH_INTERVAL" default:"5m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// StartLimit is requests per minute for job start endpoints (default: 10)
	StartLimit int `env:"RATE_LIMIT_START" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File additionally writes JSON logs to this path when set
	File string `env:"LOG_FILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
