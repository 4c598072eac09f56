// Package config loads application configuration from environment variables
// (.env file first, then the process environment), matching the load order
// used throughout the teacher repository: godotenv.Load() is best-effort,
// then typed getenv helpers apply defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/joho/godotenv"
)

// StartupMode controls which jobs the scheduler may run before its first
// scheduled tick. See spec §4.I.
type StartupMode string

const (
	StartupSkip     StartupMode = "skip"
	StartupTasks    StartupMode = "tasks_only"
	StartupFullInit StartupMode = "full_init"
	StartupETFOnly  StartupMode = "etf_only"
)

// normaliseStartupMode accepts the legacy aliases named in spec §6.
func normaliseStartupMode(raw string) StartupMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none":
		return StartupSkip
	case "only_tasks":
		return StartupTasks
	case "clear_all":
		return StartupFullInit
	case string(StartupSkip), string(StartupTasks), string(StartupFullInit), string(StartupETFOnly):
		return StartupMode(raw)
	default:
		return StartupTasks
	}
}

// RealtimeProvider selects which upstream feed the rate-limited fetch fabric
// prefers for realtime quotes.
type RealtimeProvider string

const (
	ProviderTushare   RealtimeProvider = "tushare"
	ProviderEastmoney RealtimeProvider = "eastmoney"
	ProviderSina      RealtimeProvider = "sina"
	ProviderAuto      RealtimeProvider = "auto"
)

// Config holds the full set of environment variables recognised by spec §6.
type Config struct {
	RedisHost           string
	RedisPort           int
	RedisDB             int
	RedisPassword       string
	RedisURL            string
	RedisMaxConnections int
	RedisDialTimeout    time.Duration
	RedisReadTimeout    time.Duration
	RedisWriteTimeout   time.Duration

	TushareToken string

	APIToken        string
	APITokenEnabled bool

	AIEnabled         bool
	DefaultAIEndpoint string
	DefaultAIAPIKey   string
	DefaultAIModel    string

	LogLevel string

	ResetTables bool
	StartupMode StartupMode

	UseMultithreading bool
	MaxThreads        int

	RealtimeDataProvider   RealtimeProvider
	RealtimeUpdateInterval time.Duration
	RealtimeAutoSwitch     bool

	Port int
}

// Load reads and validates configuration. A .env file is optional; its
// absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RedisHost:           getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:           getEnvAsInt("REDIS_PORT", 6379),
		RedisDB:             getEnvAsInt("REDIS_DB", 0),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisMaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
		RedisDialTimeout:    getEnvAsDuration("REDIS_SOCKET_CONNECT_TIMEOUT", 5*time.Second),
		RedisReadTimeout:    getEnvAsDuration("REDIS_SOCKET_TIMEOUT", 5*time.Second),
		RedisWriteTimeout:   getEnvAsDuration("REDIS_SOCKET_TIMEOUT", 5*time.Second),

		TushareToken: getEnv("TUSHARE_TOKEN", ""),

		APIToken:        getEnv("API_TOKEN", ""),
		APITokenEnabled: getEnvAsBool("API_TOKEN_ENABLED", false),

		AIEnabled:         getEnvAsBool("AI_ENABLED", false),
		DefaultAIEndpoint: getEnv("DEFAULT_AI_ENDPOINT", ""),
		DefaultAIAPIKey:   getEnv("DEFAULT_AI_API_KEY", ""),
		DefaultAIModel:    getEnv("DEFAULT_AI_MODEL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		ResetTables: getEnvAsBool("RESET_TABLES", false),
		StartupMode: normaliseStartupMode(getEnv("STOCK_INIT_MODE", "tasks_only")),

		UseMultithreading: getEnvAsBool("USE_MULTITHREADING", true),
		MaxThreads:        getEnvAsInt("MAX_THREADS", 8),

		RealtimeDataProvider:   RealtimeProvider(getEnv("REALTIME_DATA_PROVIDER", "auto")),
		RealtimeUpdateInterval: time.Duration(getEnvAsInt("REALTIME_UPDATE_INTERVAL", 15)) * time.Minute,
		RealtimeAutoSwitch:     getEnvAsBool("REALTIME_AUTO_SWITCH", true),

		Port: getEnvAsInt("GO_PORT", 8001),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks constraints that would make the system unable to start
// usefully. Credentials are optional (research/no-provider mode is valid);
// only structurally nonsensical values are rejected.
func (c *Config) Validate() error {
	switch c.RealtimeDataProvider {
	case ProviderTushare, ProviderEastmoney, ProviderSina, ProviderAuto:
	default:
		return apperr.New(apperr.ConfigInvalid, "config.Validate", fmt.Sprintf("invalid REALTIME_DATA_PROVIDER %q", c.RealtimeDataProvider))
	}
	if c.RedisMaxConnections <= 0 {
		return apperr.New(apperr.ConfigInvalid, "config.Validate", "REDIS_MAX_CONNECTIONS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
