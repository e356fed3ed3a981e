package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Jobs      JobsConfig

	// Scrape is the base scrape configuration every request is merged over.
	Scrape ScrapeConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// ScrapeTimeout bounds a synchronous /scrape call.
	ScrapeTimeout time.Duration // default: 5m
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the scrape response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 200
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// JobsConfig controls asynchronous scrape jobs.
type JobsConfig struct {
	// TTL is how long finished jobs stay queryable.
	TTL time.Duration // default: 1h

	// WebhookURL receives job.completed / job.failed events when set.
	WebhookURL    string
	WebhookSecret string
}

// Load reads configuration from environment variables with sane defaults.
// SERPENT_SCRAPE_CONFIG may name a JSON file whose keys override the
// default scrape configuration.
func Load() (*Config, error) {
	scrape := DefaultScrapeConfig()
	if path := os.Getenv("SERPENT_SCRAPE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read scrape config: %w", err)
		}
		var overrides map[string]any
		if err := json.Unmarshal(data, &overrides); err != nil {
			return nil, fmt.Errorf("config: parse scrape config: %w", err)
		}
		merged, err := Merge(scrape, overrides)
		if err != nil {
			return nil, err
		}
		scrape = merged
	}

	scrape.Headless = envBoolOr("SERPENT_HEADLESS", scrape.Headless)
	scrape.Proxy = envOr("SERPENT_PROXY", scrape.Proxy)
	scrape.ProxyFile = envOr("SERPENT_PROXY_FILE", scrape.ProxyFile)
	scrape.BrowserBin = envOr("SERPENT_BROWSER_BIN", scrape.BrowserBin)
	scrape.DebugLevel = envIntOr("SERPENT_DEBUG_LEVEL", scrape.DebugLevel)
	scrape.CustomFunc = envOr("SERPENT_CUSTOM_FUNC", scrape.CustomFunc)
	scrape.SQLitePath = envOr("SERPENT_SQLITE_PATH", scrape.SQLitePath)

	return &Config{
		Server: ServerConfig{
			Host:          envOr("SERPENT_HOST", "0.0.0.0"),
			Port:          envIntOr("SERPENT_PORT", 8080),
			Mode:          envOr("SERPENT_MODE", "release"),
			ScrapeTimeout: envDurationOr("SERPENT_SCRAPE_TIMEOUT", 5*time.Minute),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SERPENT_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SERPENT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SERPENT_RATE_RPS", 1.0),
			Burst:             envIntOr("SERPENT_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SERPENT_CACHE_MAX_ENTRIES", 200),
		},
		Log: LogConfig{
			Level:  envOr("SERPENT_LOG_LEVEL", "info"),
			Format: envOr("SERPENT_LOG_FORMAT", "json"),
		},
		Jobs: JobsConfig{
			TTL:           envDurationOr("SERPENT_JOB_TTL", time.Hour),
			WebhookURL:    os.Getenv("SERPENT_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("SERPENT_WEBHOOK_SECRET"),
		},
		Scrape: scrape,
	}, nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
