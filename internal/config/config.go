// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for blinksync. It supports a
// three-layer override chain (defaults -> config file -> environment) with
// CLI flags applied by the command layer on top.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	API     APIConfig     `toml:"api"`
	Sync    SyncConfig    `toml:"sync"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig controls the backend transport: base URL, request timeout, and
// the client-side rate limit applied in front of every request. TokenURL
// and ClientID configure the OAuth2 refresh endpoint; leaving them empty
// disables automatic token refresh.
type APIConfig struct {
	BaseURL   string  `toml:"base_url"`
	Timeout   string  `toml:"timeout"`
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
	TokenURL  string  `toml:"token_url"`
	ClientID  string  `toml:"client_id"`
}

// SyncConfig controls the sync engine: drain cadence, health probing,
// batching, and the retry policy applied to queued jobs.
type SyncConfig struct {
	PollInterval    string `toml:"poll_interval"`
	HealthInterval  string `toml:"health_interval"`
	BatchSize       int    `toml:"batch_size"`
	FlushThreshold  int    `toml:"flush_threshold"`
	MaxRetries      int    `toml:"max_retries"`
	BaseDelay       string `toml:"base_delay"`
	MaxDelay        string `toml:"max_delay"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// StorageConfig controls the local SQLite database location. An empty
// db_path resolves to <data dir>/blinksync.db at load time.
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// LoggingConfig controls log output behavior. log_format "auto" picks text
// on a terminal and JSON otherwise.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Durations holds the parsed time values from the string config fields.
// Produced by Validate so downstream packages never re-parse strings.
type Durations struct {
	APITimeout      time.Duration
	PollInterval    time.Duration
	HealthInterval  time.Duration
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ShutdownTimeout time.Duration
}
