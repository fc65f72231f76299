// Package config provides centralized configuration management for the set builder.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
//
// Command-line flags override the Build section; every other section is
// environment-only.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Build    BuildConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Publish  PublishConfig
	Server   ServerConfig
	Security SecurityConfig
}

// BuildConfig holds defaults for the build command.
type BuildConfig struct {
	// WorkDir holds run archives and receives set archives (default: .)
	WorkDir string `env:"IMPORTSET_WORKDIR" default:"."`

	// ImportsPath is the default mapping catalog
	ImportsPath string `env:"IMPORTSET_IMPORTS"`

	// KeepAllSubs propagates every replication by default (default: false)
	KeepAllSubs bool `env:"IMPORTSET_KEEP" default:"false"`

	// MaxEntryBytes bounds the decoded size of one archive entry, given as a
	// byte count or a size such as 256MiB (default: 512MiB)
	MaxEntryBytes int64 `env:"IMPORTSET_MAX_ENTRY_BYTES" default:"512MiB" unit:"bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// DatabaseConfig holds build history database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; history is disabled when empty.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether build history is configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// PublishConfig holds object storage settings for publishing set archives.
type PublishConfig struct {
	// Endpoint is the S3-compatible host[:port]; publishing is disabled when empty
	Endpoint string `env:"PUBLISH_ENDPOINT"`

	AccessKey string `env:"PUBLISH_ACCESS_KEY" envAlt:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"PUBLISH_SECRET_KEY" envAlt:"MINIO_SECRET_KEY"`

	// Bucket receives the archives (default: import-sets)
	Bucket string `env:"PUBLISH_BUCKET" default:"import-sets"`

	// Prefix is prepended to every object key (default: sets)
	Prefix string `env:"PUBLISH_PREFIX" default:"sets"`

	Region string `env:"PUBLISH_REGION"`

	// UseSSL selects https (default: true)
	UseSSL bool `env:"PUBLISH_USE_SSL" default:"true"`
}

// Enabled reports whether publishing is configured.
func (c PublishConfig) Enabled() bool { return c.Endpoint != "" }

// ServerConfig holds HTTP server settings for the serve command.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 11m, longer than a build)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"11m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxConcurrentBuilds is the maximum number of parallel builds (default: 4)
	MaxConcurrentBuilds int `env:"SERVER_MAX_CONCURRENT_BUILDS" default:"4"`

	// MaxWaitTime is how long to wait for a build slot (default: 30s)
	MaxWaitTime time.Duration `env:"SERVER_MAX_WAIT_TIME" default:"30s"`
}

// SecurityConfig holds settings for the HTTP surface.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
