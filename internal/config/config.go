package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/internal/storage"
	pkgconfig "github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/config"
)

// ServiceName is the name the portal logs, traces and publishes under.
const ServiceName = "nutrition-portal"

// Config holds all configuration for the portal.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"PORTAL_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort        int           `env:"PORTAL_HTTP_PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"PORTAL_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Backend REST API
	APIURL    string `env:"API_URL" envDefault:"http://localhost:8000"`
	APIPrefix string `env:"API_PREFIX" envDefault:"/api"`

	// Persistent storage
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"file"`
	StoragePath    string `env:"STORAGE_PATH"`

	// Redis storage backend
	RedisHost      string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"portal:"`

	// Outbound HTTP
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	HTTPMaxRetries int           `env:"HTTP_MAX_RETRIES" envDefault:"2"`

	// Circuit breaker around the backend
	CBTimeout      time.Duration `env:"CB_TIMEOUT" envDefault:"30s"`
	CBFailureRatio float64       `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Share one refresh call between concurrent 401s.
	RefreshSingleFlight bool `env:"REFRESH_SINGLE_FLIGHT" envDefault:"false"`

	// Kafka session events; empty disables publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Inbound rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	// Debug and pprof endpoints (IP allowlist in CIDR notation)
	DebugAllowedCIDRs []string `env:"DEBUG_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load portal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	u, err := url.ParseRequestURI(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid API_URL %q: %w", c.APIURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("API_URL must be http or https, got %q", u.Scheme)
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with /, got %q", c.APIPrefix)
	}
	switch c.StorageBackend {
	case storage.BackendMemory, storage.BackendFile, storage.BackendRedis:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of memory, file, redis, got %q", c.StorageBackend)
	}
	if c.HTTPMaxRetries < 0 {
		return fmt.Errorf("HTTP_MAX_RETRIES must not be negative, got %d", c.HTTPMaxRetries)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must be positive, got %f rps burst %d", c.RateLimitRPS, c.RateLimitBurst)
	}
	return nil
}

// IsDevelopment reports whether debug endpoints should be mounted.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// BackendURL returns the API base URL the pipeline resolves paths against.
func (c *Config) BackendURL() string {
	return strings.TrimRight(c.APIURL, "/") + c.APIPrefix
}

// Storage returns the storage backend configuration.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		Backend: c.StorageBackend,
		Path:    c.StoragePath,
		Redis: storage.RedisConfig{
			Host:      c.RedisHost,
			Port:      c.RedisPort,
			Password:  c.RedisPassword,
			DB:        c.RedisDB,
			KeyPrefix: c.RedisKeyPrefix,
		},
	}
}
