// Package config loads worker configuration from a file and the environment.
//
// Files may be YAML, JSON or TOML. ${VAR} references in the file are expanded
// strictly before parsing. Every key can be overridden by an OFFLINEWORKER_
// environment variable, with dots replaced by underscores
// (OFFLINEWORKER_PUSH_DAILY_CEILING).
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/jonwraymond/offlineworker/cache"
	"github.com/jonwraymond/offlineworker/lifecycle"
	"github.com/jonwraymond/offlineworker/observe"
	"github.com/jonwraymond/offlineworker/push"
	"github.com/jonwraymond/offlineworker/secret"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "OFFLINEWORKER"

var (
	ErrMissingApp      = errors.New("config: app name is required")
	ErrMissingVersion  = errors.New("config: version is required")
	ErrInvalidOrigin   = errors.New("config: origin must be an absolute http(s) URL")
	ErrInvalidUpstream = errors.New("config: upstream must be an absolute http(s) URL")
	ErrInvalidStore    = errors.New("config: invalid store driver")
	ErrInvalidTimezone = errors.New("config: invalid quiet hours timezone")
	ErrInvalidCeiling  = errors.New("config: daily ceiling must be positive")
	ErrInvalidInterval = errors.New("config: sync interval must be positive")
)

var validStoreDrivers = []string{"memory", "sqlite"}

// Config is the complete worker configuration.
type Config struct {
	App     string `mapstructure:"app"`
	Version string `mapstructure:"version"`
	// Origin is the public origin the worker controls.
	Origin string `mapstructure:"origin"`
	// Upstream is where same-origin traffic is forwarded. Defaults to Origin.
	Upstream string `mapstructure:"upstream"`
	Listen   string `mapstructure:"listen"`

	Store   StoreConfig    `mapstructure:"store"`
	Cache   CacheConfig    `mapstructure:"cache"`
	Fetch   FetchConfig    `mapstructure:"fetch"`
	Push    PushConfig     `mapstructure:"push"`
	Sync    SyncConfig     `mapstructure:"sync"`
	Observe observe.Config `mapstructure:"observe"`
}

// StoreConfig selects the cache store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory|sqlite
	Path   string `mapstructure:"path"`
}

// CacheConfig configures tiers and the precache manifest.
type CacheConfig struct {
	MaxEntryBytes cache.TierLimits   `mapstructure:"max_entry_bytes"`
	StateCache    string             `mapstructure:"state_cache"`
	Manifest      lifecycle.Manifest `mapstructure:"manifest"`
}

// FetchConfig configures the network path.
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Coalesce bool          `mapstructure:"coalesce"`
	Breaker  BreakerConfig `mapstructure:"breaker"`
	// MaxConcurrent bounds in-flight upstream requests.
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
}

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// PushConfig configures the notification pipeline.
type PushConfig struct {
	Title         string           `mapstructure:"title"`
	DailyCeiling  int              `mapstructure:"daily_ceiling"`
	QuietHours    QuietHoursConfig `mapstructure:"quiet_hours"`
	DisplayURLs   []string         `mapstructure:"display_urls"`
	HistoryMaxAge time.Duration    `mapstructure:"history_max_age"`
}

// QuietHoursConfig is the quiet window in a named timezone.
type QuietHoursConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Start    push.TimeOfDay `mapstructure:"start"`
	End      push.TimeOfDay `mapstructure:"end"`
	Timezone string         `mapstructure:"timezone"`
}

// SyncConfig configures background sync.
type SyncConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	// Interval between connectivity checks against the upstream in serve mode.
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app", "lusotown")
	v.SetDefault("version", "3.0.1")
	v.SetDefault("origin", "http://localhost:8080")
	v.SetDefault("listen", ":8080")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "offlineworker.db")

	limits := cache.DefaultTierLimits()
	v.SetDefault("cache.max_entry_bytes.images", limits.Images)
	v.SetDefault("cache.state_cache", "")
	manifest := lifecycle.DefaultManifest()
	v.SetDefault("cache.manifest.core", manifest.Core)
	v.SetDefault("cache.manifest.cultural_categories", manifest.CulturalCategories)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.coalesce", true)
	v.SetDefault("fetch.breaker.threshold", 5)
	v.SetDefault("fetch.breaker.cooldown", 30*time.Second)
	v.SetDefault("fetch.max_concurrent", 32)

	v.SetDefault("push.title", "LusoTown")
	v.SetDefault("push.daily_ceiling", push.DefaultDailyCeiling)
	v.SetDefault("push.quiet_hours.enabled", true)
	v.SetDefault("push.quiet_hours.start", "22:00")
	v.SetDefault("push.quiet_hours.end", "08:00")
	v.SetDefault("push.quiet_hours.timezone", "Europe/London")
	v.SetDefault("push.display_urls", []string{})
	v.SetDefault("push.history_max_age", 30*24*time.Hour)

	v.SetDefault("sync.attempts", 3)
	v.SetDefault("sync.delay", time.Second)
	v.SetDefault("sync.interval", 30*time.Second)

	v.SetDefault("observe.service_name", "offlineworker")
	v.SetDefault("observe.logging.enabled", true)
	v.SetDefault("observe.logging.level", "info")
	v.SetDefault("observe.metrics.enabled", true)
	v.SetDefault("observe.metrics.exporter", "prometheus")
	v.SetDefault("observe.tracing.enabled", false)
	v.SetDefault("observe.tracing.exporter", "none")
	v.SetDefault("observe.tracing.sample_pct", 1.0)
}

// Load reads path (optional) and the environment into a validated Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		raw, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded, err := secret.ExpandEnvStrict(string(raw))
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		v.SetConfigType(configType(path))
		if err := v.ReadConfig(strings.NewReader(expanded)); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.Upstream == "" {
		cfg.Upstream = cfg.Origin
	}
	if cfg.Cache.StateCache == "" {
		cfg.Cache.StateCache = cfg.App + "-state"
	}
	if cfg.Observe.Version == "" {
		cfg.Observe.Version = cfg.Version
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configType(path string) string {
	switch ext := strings.TrimPrefix(filepath.Ext(path), "."); ext {
	case "yml", "":
		return "yaml"
	default:
		return ext
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.App == "" {
		return ErrMissingApp
	}
	if c.Version == "" {
		return ErrMissingVersion
	}
	if !httpURL(c.Origin) {
		return fmt.Errorf("%w: %q", ErrInvalidOrigin, c.Origin)
	}
	if c.Upstream != "" && !httpURL(c.Upstream) {
		return fmt.Errorf("%w: %q", ErrInvalidUpstream, c.Upstream)
	}
	if !slices.Contains(validStoreDrivers, c.Store.Driver) {
		return fmt.Errorf("%w: %q", ErrInvalidStore, c.Store.Driver)
	}
	if c.Push.DailyCeiling <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCeiling, c.Push.DailyCeiling)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, c.Sync.Interval)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return c.Observe.Validate()
}

func httpURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// OriginURL returns the parsed origin.
func (c *Config) OriginURL() *url.URL {
	u, _ := url.Parse(c.Origin)
	return u
}

// UpstreamURL returns the parsed upstream.
func (c *Config) UpstreamURL() *url.URL {
	u, _ := url.Parse(c.Upstream)
	return u
}

// Location loads the quiet hours timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Push.QuietHours.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Push.QuietHours.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Push.QuietHours.Timezone)
	}
	return loc, nil
}

// QuietHours converts the quiet window for the push pipeline.
func (c *Config) QuietHours() push.QuietHours {
	loc, err := c.Location()
	if err != nil {
		loc = time.UTC
	}
	return push.QuietHours{
		Enabled:  c.Push.QuietHours.Enabled,
		Start:    c.Push.QuietHours.Start,
		End:      c.Push.QuietHours.End,
		Location: loc,
	}
}

// ResolveSecrets replaces secretref values in display URLs.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	urls, err := r.ResolveAll(ctx, c.Push.DisplayURLs)
	if err != nil {
		return fmt.Errorf("config: push.display_urls: %w", err)
	}
	c.Push.DisplayURLs = urls
	return nil
}
