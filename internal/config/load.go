package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors: silently ignoring a
// typo in a config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if _, err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. Supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration applying the override chain: defaults ->
// config file -> environment. CLI flags are applied by the command layer.
func Resolve(env EnvOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.APIURL != "" {
		cfg.API.BaseURL = env.APIURL
	}

	if env.DBPath != "" {
		cfg.Storage.DBPath = env.DBPath
	}

	if env.LogLevel != "" {
		cfg.Logging.LogLevel = env.LogLevel
	}

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = DefaultDBPath()
	}

	return cfg, nil
}

// knownKeys are the valid dotted keys in the config file.
var knownKeys = map[string]bool{
	"api.base_url": true, "api.timeout": true,
	"api.rate_limit": true, "api.rate_burst": true,
	"api.token_url": true, "api.client_id": true,
	"sync.poll_interval": true, "sync.health_interval": true,
	"sync.batch_size": true, "sync.flush_threshold": true,
	"sync.max_retries": true, "sync.base_delay": true,
	"sync.max_delay": true, "sync.shutdown_timeout": true,
	"storage.db_path": true,
	"logging.log_level": true, "logging.log_format": true,
}

// knownKeysList is the sorted slice form for suggestion matching.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys rejects keys the decoder did not map to a struct field,
// with a "did you mean?" suggestion when a known key is close.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var msgs []string

	for _, key := range undecoded {
		name := key.String()

		msg := fmt.Sprintf("unknown config key %q", name)
		if suggestion := closestKey(name); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}

		msgs = append(msgs, msg)
	}

	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

// maxSuggestionDistance is the maximum edit distance for "did you mean?"
// suggestions.
const maxSuggestionDistance = 3

// closestKey returns the known key nearest to name, or "" when nothing is
// within maxSuggestionDistance.
func closestKey(name string) string {
	best := ""
	bestDist := maxSuggestionDistance + 1

	for _, k := range knownKeysList {
		if d := editDistance(name, k); d < bestDist {
			best = k
			bestDist = d
		}
	}

	return best
}

// editDistance computes the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i

		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}

			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Validate checks semantic constraints and parses all duration strings.
func Validate(cfg *Config) (*Durations, error) {
	if cfg.API.BaseURL == "" {
		return nil, errors.New("api.base_url must not be empty")
	}

	if cfg.Sync.BatchSize < 1 {
		return nil, fmt.Errorf("sync.batch_size must be positive, got %d", cfg.Sync.BatchSize)
	}

	if cfg.Sync.MaxRetries < 0 {
		return nil, fmt.Errorf("sync.max_retries must be non-negative, got %d", cfg.Sync.MaxRetries)
	}

	if cfg.API.RateLimit <= 0 {
		return nil, fmt.Errorf("api.rate_limit must be positive, got %v", cfg.API.RateLimit)
	}

	var (
		d   Durations
		err error
	)

	fields := []struct {
		name  string
		value string
		dest  *time.Duration
	}{
		{"api.timeout", cfg.API.Timeout, &d.APITimeout},
		{"sync.poll_interval", cfg.Sync.PollInterval, &d.PollInterval},
		{"sync.health_interval", cfg.Sync.HealthInterval, &d.HealthInterval},
		{"sync.base_delay", cfg.Sync.BaseDelay, &d.BaseDelay},
		{"sync.max_delay", cfg.Sync.MaxDelay, &d.MaxDelay},
		{"sync.shutdown_timeout", cfg.Sync.ShutdownTimeout, &d.ShutdownTimeout},
	}

	for _, f := range fields {
		*f.dest, err = time.ParseDuration(f.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}

		if *f.dest <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", f.name, f.value)
		}
	}

	if d.BaseDelay > d.MaxDelay {
		return nil, fmt.Errorf("sync.base_delay %s exceeds sync.max_delay %s",
			cfg.Sync.BaseDelay, cfg.Sync.MaxDelay)
	}

	return &d, nil
}
