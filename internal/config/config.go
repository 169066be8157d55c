// Package config defines service configuration and its loading.
//
// Values are layered: defaults from New, then an optional YAML file, then
// environment variables. Every key is flat and matches its koanf tag.
package config

import (
	"fmt"
	"time"

	"github.com/okian/dropwatch/internal/domain/period"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// LogFile, when set, also writes logs to a rotating file.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// ResetTimezone is the IANA zone in which reset periods are computed.
	ResetTimezone string `koanf:"reset_timezone"`

	// WeeklyAnchor is the weekday on which weekly periods start.
	WeeklyAnchor string `koanf:"weekly_anchor"`

	// DatabaseURL selects PostgreSQL storage. Empty keeps everything in memory.
	DatabaseURL string `koanf:"database_url"`

	// AutoMigrate applies pending migrations on serve.
	AutoMigrate bool `koanf:"auto_migrate"`

	// RedisAddr enables the stats cache. Empty disables it.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// CacheTTLSeconds is how long cached stats live. Zero disables the cache.
	CacheTTLSeconds int `koanf:"cache_ttl_seconds"`

	// CatalogPath points at a boss catalog YAML. Empty uses the built-in one.
	CatalogPath string `koanf:"catalog_path"`

	// QueueSize bounds the invalidation queue.
	QueueSize int `koanf:"queue_size"`

	// RecomputeSchedule is a cron spec for the periodic recompute.
	RecomputeSchedule string `koanf:"recompute_schedule"`

	// RecomputeOnWrite triggers a debounced recompute after every write.
	RecomputeOnWrite bool `koanf:"recompute_on_write"`

	// RecomputeDebounceMS is the coalescing window for write-driven recomputes.
	RecomputeDebounceMS int `koanf:"recompute_debounce_ms"`

	// RecomputeConcurrency bounds how many bosses are folded in parallel.
	RecomputeConcurrency int `koanf:"recompute_concurrency"`

	// RecomputeMaxRetries is the number of attempts on storage failure.
	RecomputeMaxRetries int `koanf:"recompute_max_retries"`

	// PublicMinSample hides stats with fewer all-time runs.
	PublicMinSample int `koanf:"public_min_sample"`

	// MaxRareLimit caps GET /stats/rare?limit.
	MaxRareLimit int `koanf:"max_rare_limit"`

	// MaxPartySize caps party size below per-boss limits.
	MaxPartySize int `koanf:"max_party_size"`

	// FutureSkewSeconds is how far ahead of the clock a clear may be dated.
	FutureSkewSeconds int `koanf:"future_skew_seconds"`

	// RateLimitRPS and RateLimitBurst bound writes per client.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// MetricsEnabled switches Prometheus recording. /metrics is always served.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshSeconds is how often gauges such as queue depth are polled.
	MetricsRefreshSeconds int `koanf:"metrics_refresh_seconds"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		ResetTimezone:         "UTC",
		WeeklyAnchor:          "thursday",
		CacheTTLSeconds:       60,
		QueueSize:             10_000,
		RecomputeSchedule:     "@every 1h",
		RecomputeOnWrite:      true,
		RecomputeDebounceMS:   2_000,
		RecomputeConcurrency:  4,
		RecomputeMaxRetries:   5,
		PublicMinSample:       100,
		MaxRareLimit:          100,
		MaxPartySize:          6,
		FutureSkewSeconds:     300,
		RateLimitRPS:          10,
		RateLimitBurst:        20,
		MetricsEnabled:        true,
		MetricsRefreshSeconds: 10,
	}
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Anchor(); err != nil {
		return err
	}
	for name, v := range map[string]int{
		"queue_size":              c.QueueSize,
		"recompute_concurrency":   c.RecomputeConcurrency,
		"recompute_max_retries":   c.RecomputeMaxRetries,
		"max_rare_limit":          c.MaxRareLimit,
		"max_party_size":          c.MaxPartySize,
		"rate_limit_burst":        c.RateLimitBurst,
		"metrics_refresh_seconds": c.MetricsRefreshSeconds,
	} {
		if v < 1 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	for name, v := range map[string]int{
		"cache_ttl_seconds":     c.CacheTTLSeconds,
		"recompute_debounce_ms": c.RecomputeDebounceMS,
		"public_min_sample":     c.PublicMinSample,
		"future_skew_seconds":   c.FutureSkewSeconds,
		"redis_db":              c.RedisDB,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: rate_limit_rps must be positive", ErrInvalidConfig)
	}
	return nil
}

// Location returns the reset time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ResetTimezone)
	if err != nil {
		return nil, fmt.Errorf("%w: reset_timezone %q: %w", ErrInvalidConfig, c.ResetTimezone, err)
	}
	return loc, nil
}

// Anchor returns the weekly reset weekday.
func (c *Config) Anchor() (time.Weekday, error) {
	d, err := period.ParseWeekday(c.WeeklyAnchor)
	if err != nil {
		return 0, fmt.Errorf("%w: weekly_anchor: %w", ErrInvalidConfig, err)
	}
	return d, nil
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

// RecomputeDebounce returns RecomputeDebounceMS as a duration.
func (c *Config) RecomputeDebounce() time.Duration {
	return time.Duration(c.RecomputeDebounceMS) * time.Millisecond
}

// MetricsRefresh returns MetricsRefreshSeconds as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshSeconds) * time.Second
}

// FutureSkew returns FutureSkewSeconds as a duration.
func (c *Config) FutureSkew() time.Duration { return time.Duration(c.FutureSkewSeconds) * time.Second }
