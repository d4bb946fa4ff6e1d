// Package config handles storechat configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure for storechat.
type Config struct {
	// API settings for the messaging REST service.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Auth settings
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Sync controls polling cadence and fetch limits.
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// APIConfig contains REST client settings.
type APIConfig struct {
	// BaseURL is the messaging service root, e.g. https://shop.example.com/api.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// RequestsPerSecond caps the client request rate.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst is the limiter bucket size.
	Burst int `yaml:"burst" mapstructure:"burst"`
}

// AuthConfig contains token settings.
type AuthConfig struct {
	// Token is a literal bearer token. Prefer TokenFile.
	Token string `yaml:"token" mapstructure:"token"`

	// TokenFile is re-read on every request when set.
	TokenFile string `yaml:"token_file" mapstructure:"token_file"`

	// UserID is the current user. Derived from the token's sub claim when empty.
	UserID string `yaml:"user_id" mapstructure:"user_id"`

	// OfflineToken is a sentinel value treated as "no token".
	OfflineToken string `yaml:"offline_token" mapstructure:"offline_token"`
}

// SyncConfig contains polling settings.
type SyncConfig struct {
	// RosterInterval is how often the conversation list and unread counts refresh.
	RosterInterval time.Duration `yaml:"roster_interval" mapstructure:"roster_interval"`

	// ThreadInterval is how often the selected thread refreshes.
	ThreadInterval time.Duration `yaml:"thread_interval" mapstructure:"thread_interval"`

	// MaxConcurrentFetches bounds per-tick thread fetches.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches" mapstructure:"max_concurrent_fetches"`

	// ThreadFetchTTL lets one roster tick share a thread fetch between the
	// preview and the unread count. Zero disables it.
	ThreadFetchTTL time.Duration `yaml:"thread_fetch_ttl" mapstructure:"thread_fetch_ttl"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "http://localhost:3000/api",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Auth: AuthConfig{},
		Sync: SyncConfig{
			RosterInterval:       5 * time.Second,
			ThreadInterval:       3 * time.Second,
			MaxConcurrentFetches: 4,
			ThreadFetchTTL:       time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.API.BaseURL)
	if base == "" {
		return fmt.Errorf("api.base_url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) url")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.RequestsPerSecond <= 0 {
		return fmt.Errorf("api.requests_per_second must be positive")
	}
	if c.API.Burst < 1 {
		return fmt.Errorf("api.burst must be at least 1")
	}

	if c.Sync.RosterInterval < 500*time.Millisecond {
		return fmt.Errorf("sync.roster_interval must be at least 500ms")
	}
	if c.Sync.ThreadInterval < 500*time.Millisecond {
		return fmt.Errorf("sync.thread_interval must be at least 500ms")
	}
	if c.Sync.MaxConcurrentFetches < 1 {
		return fmt.Errorf("sync.max_concurrent_fetches must be at least 1")
	}
	if c.Sync.ThreadFetchTTL < 0 {
		return fmt.Errorf("sync.thread_fetch_ttl must not be negative")
	}
	if c.Sync.ThreadFetchTTL >= c.Sync.ThreadInterval {
		return fmt.Errorf("sync.thread_fetch_ttl must be shorter than sync.thread_interval")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}

	return nil
}
