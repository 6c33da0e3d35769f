// Package config loads swrcache settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/IvanBrykalov/swrcache/internal/dedupe"
	"github.com/IvanBrykalov/swrcache/internal/logging"
	"github.com/IvanBrykalov/swrcache/prefetch"
	"github.com/IvanBrykalov/swrcache/stats"
	"github.com/IvanBrykalov/swrcache/swr"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Triggers TriggerConfig  `yaml:"triggers"`
	Prefetch PrefetchConfig `yaml:"prefetch"`
	Stats    StatsConfig    `yaml:"stats"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// CacheConfig sizes the store and sets default lifetimes.
type CacheConfig struct {
	MaxSize      int           `yaml:"max_size"`
	TTL          time.Duration `yaml:"ttl"`
	StaleTime    time.Duration `yaml:"stale_time"`
	DedupeWindow time.Duration `yaml:"dedupe_window"`
}

// TriggerConfig sets the default revalidation triggers for watched keys.
type TriggerConfig struct {
	RevalidateOnFocus     bool `yaml:"revalidate_on_focus"`
	RevalidateOnReconnect bool `yaml:"revalidate_on_reconnect"`
}

type PrefetchConfig struct {
	Enabled     bool          `yaml:"enabled"`
	HistorySize int           `yaml:"history_size"`
	TopN        int           `yaml:"top_n"`
	Delay       time.Duration `yaml:"delay"`
}

type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxSize:      swr.DefaultCapacity,
			TTL:          swr.DefaultTTL,
			StaleTime:    swr.DefaultStaleTime,
			DedupeWindow: dedupe.DefaultWindow,
		},
		Triggers: TriggerConfig{
			RevalidateOnFocus:     true,
			RevalidateOnReconnect: true,
		},
		Prefetch: PrefetchConfig{
			Enabled:     true,
			HistorySize: prefetch.DefaultHistorySize,
			TopN:        prefetch.DefaultTopN,
			Delay:       prefetch.DefaultDelay,
		},
		Stats: StatsConfig{Interval: stats.DefaultInterval},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatLogfmt,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Addr:      ":8080",
			Namespace: "swrcache",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from SWRCACHE_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = strings.EqualFold(v, "true")
		}
	}

	num("SWRCACHE_MAX_SIZE", &c.Cache.MaxSize)
	dur("SWRCACHE_TTL", &c.Cache.TTL)
	dur("SWRCACHE_STALE_TIME", &c.Cache.StaleTime)
	dur("SWRCACHE_DEDUPE_WINDOW", &c.Cache.DedupeWindow)
	flag("SWRCACHE_PREFETCH", &c.Prefetch.Enabled)
	dur("SWRCACHE_STATS_INTERVAL", &c.Stats.Interval)
	str("SWRCACHE_LOG_LEVEL", &c.Log.Level)
	str("SWRCACHE_LOG_FORMAT", &c.Log.Format)
	flag("SWRCACHE_METRICS", &c.Metrics.Enabled)
	str("SWRCACHE_METRICS_ADDR", &c.Metrics.Addr)

	return errors.Join(errs...)
}

// Validate checks sizes and log settings. A stale_time longer than ttl is
// accepted; such entries are simply never observed stale.
func (c *Config) Validate() error {
	switch {
	case c.Cache.MaxSize <= 0:
		return fmt.Errorf("%w: cache.max_size must be greater than 0", ErrInvalid)
	case c.Cache.DedupeWindow < 0:
		return fmt.Errorf("%w: cache.dedupe_window must not be negative", ErrInvalid)
	case c.Prefetch.HistorySize <= 0:
		return fmt.Errorf("%w: prefetch.history_size must be greater than 0", ErrInvalid)
	case c.Prefetch.TopN <= 0:
		return fmt.Errorf("%w: prefetch.top_n must be greater than 0", ErrInvalid)
	case c.Prefetch.Delay < 0:
		return fmt.Errorf("%w: prefetch.delay must not be negative", ErrInvalid)
	case c.Stats.Interval <= 0:
		return fmt.Errorf("%w: stats.interval must be greater than 0", ErrInvalid)
	case !logging.ValidLevel(c.Log.Level):
		return fmt.Errorf("%w: invalid log.level: %s (must be one of: debug, info, warn, error)", ErrInvalid, c.Log.Level)
	case c.Log.Format != logging.FormatLogfmt && c.Log.Format != logging.FormatJSON:
		return fmt.Errorf("%w: invalid log.format: %s (must be logfmt or json)", ErrInvalid, c.Log.Format)
	case c.Metrics.Enabled && c.Metrics.Addr == "":
		return fmt.Errorf("%w: metrics.addr is required when metrics are enabled", ErrInvalid)
	}
	return nil
}

// ClientOptions maps the cache section onto swr.Options. Logger, metrics and
// clock are left to the caller.
func ClientOptions[V any](c *Config) swr.Options[V] {
	return swr.Options[V]{
		Capacity:         c.Cache.MaxSize,
		DefaultTTL:       c.Cache.TTL,
		DefaultStaleTime: c.Cache.StaleTime,
		DedupeWindow:     c.Cache.DedupeWindow,
	}
}

// FetchDefaults returns FetchOptions carrying the configured lifetimes and
// triggers.
func FetchDefaults[V any](c *Config) swr.FetchOptions[V] {
	return swr.FetchOptions[V]{
		TTL:                   c.Cache.TTL,
		StaleTime:             c.Cache.StaleTime,
		RevalidateOnFocus:     c.Triggers.RevalidateOnFocus,
		RevalidateOnReconnect: c.Triggers.RevalidateOnReconnect,
	}
}

func (c *Config) PrefetchOptions() prefetch.Options {
	return prefetch.Options{
		HistorySize: c.Prefetch.HistorySize,
		TopN:        c.Prefetch.TopN,
		Delay:       c.Prefetch.Delay,
		Disabled:    !c.Prefetch.Enabled,
	}
}

func (c *Config) StatsOptions() stats.Options {
	return stats.Options{Interval: c.Stats.Interval}
}
