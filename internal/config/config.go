// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables (.env file)
// and updating configuration from the settings database. Settings database values
// take precedence over environment variables.
//
// Configuration Loading Order:
// 1. Load from .env file (if exists)
// 2. Load from environment variables
// 3. Update from settings database (takes precedence)
//
// Data Directory Priority (highest to lowest):
// 1. --data-dir CLI flag (if provided)
// 2. TRADER_DATA_DIR environment variable
// 3. ./data (default)
//
// This allows credentials and other sensitive settings to be managed via the
// Settings UI instead of requiring .env file changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/sentinel/internal/modules/settings"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
//
// Configuration is loaded from environment variables and can be updated
// from the settings database. Settings database values take precedence.
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string // Log level (debug, info, warn, error)
	Port     int    // HTTP server port (default: 8001)
	DevMode  bool   // Development mode flag

	// Broker credentials (can be overridden by settings DB)
	BrokerAPIKey    string
	BrokerAPISecret string
	BrokerBaseURL   string

	// LLM provider used by the sentiment analyzer and signal optimizer
	LLMProvider string
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string

	// SMTP transport for observability alerts
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       string

	// HTTP webhook SMS transport for observability alerts
	SMSWebhookURL string
	SMSAPIKey     string
	SMSToNumber   string

	// Alert cooldown, to avoid paging on every repeated breach
	AlertCooldownMinutes int

	// S3-compatible object store used for durable backup uploads
	ObjectStoreEndpoint        string
	ObjectStoreRegion          string
	ObjectStoreBucket          string
	ObjectStoreAccessKeyID     string
	ObjectStoreSecretAccessKey string

	// BackupRetentionDays is how long uploaded backup archives are kept
	// before rotation deletes them. Zero means keep forever.
	BackupRetentionDays int

	// Watchlist is the symbol universe the price poller and signal
	// processor work over, beyond whatever each user already holds.
	Watchlist []string

	NewsBaseURL string
	NewsAPIKey  string
	VIXBaseURL  string

	// NewsRetentionDays/NewsLookbackDays bound C4's prune/fetch window.
	NewsRetentionDays int
	NewsLookbackDays  int

	// StartingCash seeds the paper-trading mock broker.
	StartingCash float64
}

// Load reads configuration from environment variables.
//
// This function:
// 1. Loads .env file if it exists (via godotenv)
// 2. Reads environment variables with defaults
// 3. Resolves data directory to absolute path
// 4. Creates data directory if it doesn't exist
// 5. Validates configuration
//
// Note: Configuration can be updated later from settings database via UpdateFromSettings().
// Settings database values take precedence over environment variables.
//
// dataDirOverride - Optional CLI flag override for data directory (takes highest priority)
// Returns *Config - Loaded configuration
// Returns error - Error if configuration loading fails
func Load(dataDirOverride ...string) (*Config, error) {
	// Load .env file if it exists
	// godotenv.Load() returns an error if .env doesn't exist, which is fine
	_ = godotenv.Load()

	// Determine data directory with fallback logic (priority order):
	// 1. CLI flag override (if provided) - highest priority
	// 2. TRADER_DATA_DIR environment variable
	// 3. Default to ./data - lowest priority
	// 4. Always resolve to absolute path
	// 5. Ensure directory exists
	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("TRADER_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BrokerAPIKey:    getEnv("BROKER_API_KEY", ""),
		BrokerAPISecret: getEnv("BROKER_API_SECRET", ""),
		BrokerBaseURL:   getEnv("BROKER_BASE_URL", ""),

		LLMProvider: getEnv("LLM_PROVIDER", "openai"),
		LLMBaseURL:  getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		LLMModel:    getEnv("LLM_MODEL", "gpt-4o-mini"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPTo:       getEnv("SMTP_TO", ""),

		SMSWebhookURL: getEnv("SMS_WEBHOOK_URL", ""),
		SMSAPIKey:     getEnv("SMS_API_KEY", ""),
		SMSToNumber:   getEnv("SMS_TO_NUMBER", ""),

		AlertCooldownMinutes: getEnvAsInt("ALERT_COOLDOWN_MINUTES", 30),

		ObjectStoreEndpoint:        getEnv("OBJECT_STORE_ENDPOINT", ""),
		ObjectStoreRegion:          getEnv("OBJECT_STORE_REGION", "auto"),
		ObjectStoreBucket:          getEnv("OBJECT_STORE_BUCKET", ""),
		ObjectStoreAccessKeyID:     getEnv("OBJECT_STORE_ACCESS_KEY_ID", ""),
		ObjectStoreSecretAccessKey: getEnv("OBJECT_STORE_SECRET_ACCESS_KEY", ""),

		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),

		Watchlist: getEnvAsStringSlice("WATCHLIST", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"}),

		NewsBaseURL: getEnv("NEWS_BASE_URL", "https://newsapi.org/v2"),
		NewsAPIKey:  getEnv("NEWS_API_KEY", ""),
		VIXBaseURL:  getEnv("VIX_BASE_URL", "https://query1.finance.yahoo.com/v8/finance/chart/%5EVIX"),

		NewsRetentionDays: getEnvAsInt("NEWS_RETENTION_DAYS", 30),
		NewsLookbackDays:  getEnvAsInt("NEWS_LOOKBACK_DAYS", 7),

		StartingCash: getEnvAsFloat("STARTING_CASH", 100000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateFromSettings updates configuration from settings database.
//
// This should be called after the config database is initialized.
// Settings database values take precedence over environment variables.
//
// This allows credentials and other sensitive settings to be managed via the
// Settings UI instead of requiring .env file changes or environment variable updates.
//
// If a settings database value is empty, the environment variable value is kept
// as a fallback.
//
// settingsRepo - Settings repository (must be initialized)
// Returns error - Error if settings retrieval fails
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	if err := c.overrideFromSettings(settingsRepo, "broker_api_key", &c.BrokerAPIKey); err != nil {
		return err
	}
	if err := c.overrideFromSettings(settingsRepo, "broker_api_secret", &c.BrokerAPISecret); err != nil {
		return err
	}
	if err := c.overrideFromSettings(settingsRepo, "broker_base_url", &c.BrokerBaseURL); err != nil {
		return err
	}
	if err := c.overrideFromSettings(settingsRepo, "llm_api_key", &c.LLMAPIKey); err != nil {
		return err
	}
	if err := c.overrideFromSettings(settingsRepo, "llm_provider", &c.LLMProvider); err != nil {
		return err
	}
	return nil
}

// overrideFromSettings replaces *dest with the settings DB value for key,
// but only when that value is present and non-empty, so an unset setting
// never clobbers an environment-supplied default.
func (c *Config) overrideFromSettings(settingsRepo *settings.Repository, key string, dest *string) error {
	value, err := settingsRepo.Get(key)
	if err != nil {
		return fmt.Errorf("failed to get %s from settings: %w", key, err)
	}
	if value != nil && *value != "" {
		*dest = *value
	}
	return nil
}

// Validate checks if required configuration is present.
//
// Broker and LLM credentials are optional at load time since research mode
// and backtesting don't require either, and both can be supplied later via
// the Settings UI.
//
// Returns error - Error if validation fails (currently always returns nil)
func (c *Config) Validate() error {
	return nil
}

// ==========================================
// Helper Functions
// ==========================================

// getEnv retrieves an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float with a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsStringSlice retrieves a comma-separated environment variable as a
// slice, trimming whitespace around each element.
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
