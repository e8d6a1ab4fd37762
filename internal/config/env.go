package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "BLINKSYNC_CONFIG"
	EnvAPIURL   = "BLINKSYNC_API_URL"
	EnvDBPath   = "BLINKSYNC_DB_PATH"
	EnvLogLevel = "BLINKSYNC_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // BLINKSYNC_CONFIG: override config file path
	APIURL     string // BLINKSYNC_API_URL: override backend base URL
	DBPath     string // BLINKSYNC_DB_PATH: override state database path
	LogLevel   string // BLINKSYNC_LOG_LEVEL: override log level
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		APIURL:     os.Getenv(EnvAPIURL),
		DBPath:     os.Getenv(EnvDBPath),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
