// Package config loads service configuration from environment variables and
// validates it on startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Storage, queue and search drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Search   SearchConfig
	Cache    CacheConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"SERVER_PORT" default:"8000"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining workers (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Required when STORE_DRIVER=postgres.
	URL string `env:"DATABASE_URL" envAlt:"DB_URI"`

	// Name is the descriptor carried by every ingestion job. A worker only
	// processes jobs whose descriptor matches its own (default: primary).
	Name string `env:"DB_NAME" default:"primary"`

	// Migrate creates the products table and indexes on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StoreConfig selects the primary store.
type StoreConfig struct {
	// Driver is postgres or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`
}

// RedisConfig holds the Redis connection shared by the queue and the cache.
type RedisConfig struct {
	URL string `env:"REDIS_URL" default:"redis://localhost:6379/0"`
}

// QueueConfig holds ingestion queue settings.
type QueueConfig struct {
	// Driver is redis or memory (default: redis). The memory queue only
	// works when the server runs its own workers.
	Driver string `env:"QUEUE_DRIVER" default:"redis"`

	Key          string        `env:"QUEUE_KEY" default:"ingest:queue"`
	StatusPrefix string        `env:"QUEUE_STATUS_PREFIX" default:"ingest:job:"`
	Workers      int           `env:"QUEUE_WORKERS" default:"4"`
	JobTTL       time.Duration `env:"QUEUE_JOB_TTL" default:"24h"`
	Capacity     int           `env:"QUEUE_CAPACITY" default:"100"`
	PollTimeout  time.Duration `env:"QUEUE_POLL_TIMEOUT" default:"5s"`
}

// SearchConfig holds Elasticsearch settings. An empty URL disables the index.
type SearchConfig struct {
	URLs  []string `env:"ELASTICSEARCH_URL"`
	Index string   `env:"ELASTICSEARCH_INDEX" default:"products"`
}

// Enabled reports whether a search index is configured.
func (c *SearchConfig) Enabled() bool {
	return len(c.URLs) > 0
}

// CacheConfig holds list cache settings.
type CacheConfig struct {
	Enabled bool          `env:"CACHE_ENABLED" default:"false"`
	TTL     time.Duration `env:"CACHE_TTL" default:"30s"`
	Prefix  string        `env:"CACHE_PREFIX" default:"products:list:"`
}

// UploadConfig holds upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"100MB" unit:"bytes"`

	// MaxConcurrent bounds uploads being decoded at once (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// CORSOrigins is a comma-separated list of allowed origins (default: *)
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey guards the write endpoints with X-API-Key (default: false)
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
