// Package config loads dashboard settings from defaults, an optional TOML file
// and PREDICTDASH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "PREDICTDASH"

// Config holds application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Guard   GuardConfig   `mapstructure:"guard"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Publish PublishConfig `mapstructure:"publish"`
	Prefs   PrefsConfig   `mapstructure:"prefs"`
	UI      UIConfig      `mapstructure:"ui"`
	Log     LogConfig     `mapstructure:"log"`
}

// APIConfig describes the remote prediction/publishing service.
type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	AdminHeader string        `mapstructure:"admin_header"`
	RPS         float64       `mapstructure:"rps"`
	Burst       int           `mapstructure:"burst"`
	RetryMax    int           `mapstructure:"retry_max"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
}

// GuardConfig tunes the operation guard.
type GuardConfig struct {
	BusyCooldown time.Duration `mapstructure:"busy_cooldown"`
}

// CacheConfig holds per-panel time-to-live values.
type CacheConfig struct {
	TTL SectionTTLs `mapstructure:"ttl"`
}

// SectionTTLs are hand-tuned defaults, not invariants.
type SectionTTLs struct {
	Operations time.Duration `mapstructure:"operations"`
	Fixtures   time.Duration `mapstructure:"fixtures"`
	Publishing time.Duration `mapstructure:"publishing"`
	Models     time.Duration `mapstructure:"models"`
}

// For returns the TTL configured for section, falling back to Publishing.
func (t SectionTTLs) For(section string) time.Duration {
	switch section {
	case "operations":
		return t.Operations
	case "fixtures":
		return t.Fixtures
	case "models":
		return t.Models
	default:
		return t.Publishing
	}
}

// PublishConfig tunes the publish workflow.
type PublishConfig struct {
	HistoryLimit int    `mapstructure:"history_limit"`
	ReasonLimit  int    `mapstructure:"reason_limit"`
	Variant      string `mapstructure:"variant"`
}

// PrefsConfig locates the persisted device state.
type PrefsConfig struct {
	Path     string        `mapstructure:"path"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	ToastTTL time.Duration `mapstructure:"toast_ttl"`
}

// LogConfig controls logx.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Verbose bool   `mapstructure:"verbose"`
}

func home() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return os.Getenv("HOME")
}

// DefaultPath returns the config file location: PREDICTDASH_CONFIG if set,
// otherwise ~/.config/predictdash/config.toml.
func DefaultPath() string {
	if p := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG")); p != "" {
		return p
	}
	return filepath.Join(home(), ".config", "predictdash", "config.toml")
}

// New returns a viper instance with defaults and env binding applied. The CLI
// binds its flags into the same instance before calling LoadFrom.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("api.base_url", "http://localhost:8089")
	v.SetDefault("api.token", "")
	v.SetDefault("api.admin_header", "X-Admin-Token")
	v.SetDefault("api.rps", 10.0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("api.retry_max", 2)
	v.SetDefault("api.backoff_base", 250*time.Millisecond)
	v.SetDefault("api.backoff_cap", 5*time.Second)
	v.SetDefault("guard.busy_cooldown", 1100*time.Millisecond)
	v.SetDefault("cache.ttl.operations", 15*time.Second)
	v.SetDefault("cache.ttl.fixtures", 30*time.Second)
	v.SetDefault("cache.ttl.publishing", 30*time.Second)
	v.SetDefault("cache.ttl.models", 60*time.Second)
	v.SetDefault("publish.history_limit", 25)
	v.SetDefault("publish.reason_limit", 3)
	v.SetDefault("publish.variant", "standard")
	v.SetDefault("prefs.path", filepath.Join(home(), ".local", "state", "predictdash", "prefs.json"))
	v.SetDefault("prefs.debounce", 400*time.Millisecond)
	v.SetDefault("ui.toast_ttl", 4*time.Second)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.verbose", false)

	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if it exists) on top of defaults and env.
func Load(path string) (Config, error) { return LoadFrom(New(), path) }

// LoadFrom reads path into v and unmarshals the result. A missing file is not
// an error; a malformed one is.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	return c, nil
}

// Validate checks values the coordinator depends on.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if c.API.AdminHeader == "" {
		return fmt.Errorf("api.admin_header is required")
	}
	if c.Guard.BusyCooldown <= 0 {
		return fmt.Errorf("guard.busy_cooldown must be positive")
	}
	ttl := c.Cache.TTL
	if ttl.Operations <= 0 || ttl.Fixtures <= 0 || ttl.Publishing <= 0 || ttl.Models <= 0 {
		return fmt.Errorf("cache.ttl values must be positive")
	}
	if c.Publish.HistoryLimit <= 0 {
		return fmt.Errorf("publish.history_limit must be positive")
	}
	if c.Publish.ReasonLimit < 1 {
		return fmt.Errorf("publish.reason_limit must be at least 1")
	}
	return nil
}

// Save writes cfg as TOML to path, creating the directory if needed. The
// credential is not written here; it lives in the device prefs.
func Save(path string, cfg Config) error {
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		return errors.New("api.base_url is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.admin_header", cfg.API.AdminHeader)
	v.Set("api.rps", cfg.API.RPS)
	v.Set("api.burst", cfg.API.Burst)
	v.Set("api.retry_max", cfg.API.RetryMax)
	v.Set("api.backoff_base", cfg.API.BackoffBase.String())
	v.Set("api.backoff_cap", cfg.API.BackoffCap.String())
	v.Set("guard.busy_cooldown", cfg.Guard.BusyCooldown.String())
	v.Set("cache.ttl.operations", cfg.Cache.TTL.Operations.String())
	v.Set("cache.ttl.fixtures", cfg.Cache.TTL.Fixtures.String())
	v.Set("cache.ttl.publishing", cfg.Cache.TTL.Publishing.String())
	v.Set("cache.ttl.models", cfg.Cache.TTL.Models.String())
	v.Set("publish.history_limit", cfg.Publish.HistoryLimit)
	v.Set("publish.reason_limit", cfg.Publish.ReasonLimit)
	v.Set("publish.variant", cfg.Publish.Variant)
	v.Set("prefs.path", cfg.Prefs.Path)
	v.Set("prefs.debounce", cfg.Prefs.Debounce.String())
	v.Set("ui.toast_ttl", cfg.UI.ToastTTL.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.verbose", cfg.Log.Verbose)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
