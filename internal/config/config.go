// Package config loads application settings from environment variables
// and validates them at startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	API      APIConfig
	Import   ImportConfig
	Throttle ThrottleConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so progress streams are not cut off.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to every route except the progress stream.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// APIConfig points at the remote contact API.
type APIConfig struct {
	BaseURL string        `env:"CONTACT_API_BASE_URL" envAlt:"API_BASE_URL" default:"https://api.inovstar.com/core/v2/api"`
	Timeout time.Duration `env:"CONTACT_API_TIMEOUT" default:"30s"`

	// TagColor is given to tags created by an import.
	TagColor string `env:"IMPORT_TAG_COLOR" default:"#192D3E"`
}

// ImportConfig holds upload and run settings.
type ImportConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// MaxConcurrent is how many runs may execute at once. All runs share
	// one request budget.
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"1"`

	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`
	Timeout     time.Duration `env:"IMPORT_TIMEOUT" default:"2h"`

	// CSVMode is "quoted" (RFC 4180) or "naive" (split on every comma).
	CSVMode string `env:"IMPORT_CSV_MODE" default:"quoted"`

	// JobRetention is how long a finished run stays queryable.
	JobRetention time.Duration `env:"IMPORT_JOB_RETENTION" default:"30m"`
}

// ThrottleConfig is the outbound request budget toward the remote API.
type ThrottleConfig struct {
	PerSecond int `env:"THROTTLE_PER_SECOND" default:"50"`
	PerMinute int `env:"THROTTLE_PER_MINUTE" default:"2500"`
}

// RateLimitConfig limits inbound requests per client IP.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import and export endpoints.
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects /api routes with X-API-Key.
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// DatabaseConfig configures the optional run history database. With no
// URL, history is kept in memory.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"5"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database URL is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format: text or json
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
