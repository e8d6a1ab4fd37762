package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Sync.BatchSize != defaultBatchSize {
		t.Errorf("batch_size = %d, want %d", cfg.Sync.BatchSize, defaultBatchSize)
	}

	if cfg.API.BaseURL != defaultBaseURL {
		t.Errorf("base_url = %q, want %q", cfg.API.BaseURL, defaultBaseURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[api]
base_url = "https://api.example.com/v1"

[sync]
batch_size = 10
poll_interval = "5m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.BaseURL != "https://api.example.com/v1" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}

	if cfg.Sync.BatchSize != 10 {
		t.Errorf("batch_size = %d, want 10", cfg.Sync.BatchSize)
	}

	// Unset fields keep defaults.
	if cfg.Sync.MaxRetries != defaultMaxRetries {
		t.Errorf("max_retries = %d, want default %d", cfg.Sync.MaxRetries, defaultMaxRetries)
	}
}

func TestLoad_UnknownKeySuggestion(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[sync]
batch_sze = 10
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load with unknown key should fail")
	}

	if !strings.Contains(err.Error(), "batch_sze") {
		t.Errorf("error %q should name the unknown key", err)
	}

	if !strings.Contains(err.Error(), "sync.batch_size") {
		t.Errorf("error %q should suggest sync.batch_size", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[sync]
poll_interval = "soon"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Load with invalid duration should fail")
	}
}

func TestValidate_BaseDelayExceedsMax(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Sync.BaseDelay = "10m"
	cfg.Sync.MaxDelay = "1m"

	if _, err := Validate(cfg); err == nil {
		t.Fatal("Validate should reject base_delay > max_delay")
	}
}

func TestValidate_Durations(t *testing.T) {
	t.Parallel()

	d, err := Validate(DefaultConfig())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if d.PollInterval != 60*time.Second {
		t.Errorf("poll interval = %s, want 60s", d.PollInterval)
	}

	if d.MaxDelay != 5*time.Minute {
		t.Errorf("max delay = %s, want 5m", d.MaxDelay)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}

	if cfg.Logging.LogLevel != defaultLogLevel {
		t.Errorf("log_level = %q, want default", cfg.Logging.LogLevel)
	}
}

func TestResolve_EnvOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Resolve(EnvOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "nope.toml"),
		APIURL:     "https://env.example.com",
		DBPath:     "/tmp/env.db",
		LogLevel:   "debug",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}

	if cfg.Storage.DBPath != "/tmp/env.db" {
		t.Errorf("db_path = %q", cfg.Storage.DBPath)
	}

	if cfg.Logging.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.Logging.LogLevel)
	}
}

func TestEditDistance(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"batch_sze", "batch_size", 1},
	}

	for _, c := range cases {
		if got := editDistance(c.a, c.b); got != c.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
