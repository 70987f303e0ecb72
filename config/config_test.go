package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.WeekStart != "monday" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("unexpected permissions: %v", perm)
	}
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("listen: \"0.0.0.0:9000\"\nweek_start: friday\nfeeds:\n  - id: work\n    url: https://example.com/work.ics\n    name: Work\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Fatalf("explicit value overridden: %+v", cfg)
	}
	if cfg.WeekStart != "monday" {
		t.Fatalf("unknown week start must fall back to monday, got %q", cfg.WeekStart)
	}
	if cfg.RefreshCron == "" || cfg.DatabasePath == "" || cfg.CacheTTLSeconds <= 0 {
		t.Fatalf("defaults not filled: %+v", cfg)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].ID != "work" {
		t.Fatalf("feeds not parsed: %+v", cfg.Feeds)
	}
	if cfg.Auth.Mode != "none" {
		t.Fatalf("auth mode must default to none, got %q", cfg.Auth.Mode)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.WeekStart = "sunday"
	cfg.Feeds = []FeedConfig{{ID: "personal", URL: "https://example.com/p.ics", Name: "Personal", Color: "green"}}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Timezone != "UTC" || loaded.WeekStart != "sunday" {
		t.Fatalf("round trip lost fields: %+v", loaded)
	}
	if loaded.FirstWeekday() != time.Sunday {
		t.Fatalf("unexpected first weekday: %v", loaded.FirstWeekday())
	}
	if len(loaded.Feeds) != 1 || loaded.Feeds[0].Color != "green" {
		t.Fatalf("feeds lost: %+v", loaded.Feeds)
	}
	if loc, err := loaded.Location(); err != nil || loc != time.UTC {
		t.Fatalf("timezone did not resolve: %v / %v", loc, err)
	}
}
