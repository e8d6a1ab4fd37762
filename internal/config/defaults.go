package config

// Default values for configuration options. These represent "layer 0" of
// the override chain and are chosen so the engine works against a local
// backend without any config file.
const (
	defaultBaseURL         = "http://localhost:8000/api/v1"
	defaultAPITimeout      = "30s"
	defaultRateLimit       = 5.0
	defaultRateBurst       = 5
	defaultPollInterval    = "60s"
	defaultHealthInterval  = "30s"
	defaultBatchSize       = 50
	defaultFlushThreshold  = 100
	defaultMaxRetries      = 5
	defaultBaseDelay       = "1s"
	defaultMaxDelay        = "5m"
	defaultShutdownTimeout = "10s"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   defaultBaseURL,
			Timeout:   defaultAPITimeout,
			RateLimit: defaultRateLimit,
			RateBurst: defaultRateBurst,
		},
		Sync: SyncConfig{
			PollInterval:    defaultPollInterval,
			HealthInterval:  defaultHealthInterval,
			BatchSize:       defaultBatchSize,
			FlushThreshold:  defaultFlushThreshold,
			MaxRetries:      defaultMaxRetries,
			BaseDelay:       defaultBaseDelay,
			MaxDelay:        defaultMaxDelay,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Storage: StorageConfig{},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
