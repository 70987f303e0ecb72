package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes a single ICS subscription source.
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is the owning-calendar label attached to events.
	Name string `yaml:"name" json:"name"`
	// Color is an optional display color key; derived from Name when empty.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// AuthConfig selects the request authentication mode.
type AuthConfig struct {
	// Mode is one of "none" (default, single-user), "hs256" (shared secret)
	// or "jwks" (RS256 against a JWKS endpoint).
	Mode string `yaml:"mode" json:"mode"`
	// Secret is the shared secret for hs256 mode.
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`
	// JWKSURL, Audience and Issuer configure jwks mode.
	JWKSURL  string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty"`
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`
	Issuer   string `yaml:"issuer,omitempty" json:"issuer,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for day boundaries (e.g. "Europe/Amsterdam").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday opens week and month views.
	// Supported values: "monday" (default), "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron schedules periodic calendar refreshes (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DatabasePath is the sqlite file holding the task collection.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// Redis, when set, enables the task snapshot cache.
	Redis string `yaml:"redis,omitempty" json:"redis,omitempty"`

	// CacheTTLSeconds bounds how long a cached task snapshot may serve reads.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// Feeds is the list of subscribed ICS sources.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// Auth selects the request authentication mode.
	Auth AuthConfig `yaml:"auth" json:"auth"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "Local",
		WeekStart:       "monday",
		RefreshCron:     "*/15 * * * *",
		DatabasePath:    "nebula.db",
		CacheTTLSeconds: 60,
		Feeds:           []FeedConfig{},
		Auth:            AuthConfig{Mode: "none"},
	}
}

// Normalize fills in missing/zero values so partially-filled configs from
// older versions still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "nebula.db"
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = 60
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	switch c.Auth.Mode {
	case "none", "hs256", "jwks":
	default:
		c.Auth.Mode = "none"
	}
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// CacheTTL returns the snapshot cache lifetime as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// FirstWeekday maps the configured week start onto a weekday.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Load reads configuration from the given YAML path. A missing file is a
// first run: the default config is written with 0600 perms and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically via a temp file + rename, with
// 0600 permissions on the result.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".nebula-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
