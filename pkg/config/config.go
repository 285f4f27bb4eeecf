package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration.
type Config struct {
	// DatabaseURL is the postgres connection string for the audit
	// tables. Required.
	DatabaseURL string `yaml:"database_url"`

	// DefaultUserIDField is the field name assumed to carry the acting
	// user when a declaration does not name one.
	DefaultUserIDField string `yaml:"default_user_id_field"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// IdentityCacheSize bounds the per-process cache of identity rows
	// (tables, fields, resources).
	IdentityCacheSize int `yaml:"identity_cache_size"`

	// ManageSchema controls whether the writer creates the audit
	// tables on startup. Disable when migrations own the schema.
	ManageSchema bool `yaml:"manage_schema"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultUserIDField: "user_id",
		LogLevel:           "info",
		IdentityCacheSize:  4096,
		ManageSchema:       true,
	}
}

// LoadConfig loads configuration from environment variables, with an
// optional YAML file overlay named by FIELDTRAIL_CONFIG. Environment
// variables win over the file; the file wins over the defaults.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("FIELDTRAIL_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.DatabaseURL = getEnv("FIELDTRAIL_DATABASE_URL", cfg.DatabaseURL)
	cfg.DefaultUserIDField = getEnv("FIELDTRAIL_USER_ID_FIELD", cfg.DefaultUserIDField)
	cfg.LogLevel = getEnv("FIELDTRAIL_LOG_LEVEL", cfg.LogLevel)
	cfg.IdentityCacheSize = getEnvInt("FIELDTRAIL_IDENTITY_CACHE_SIZE", cfg.IdentityCacheSize)
	cfg.ManageSchema = getEnvBool("FIELDTRAIL_MANAGE_SCHEMA", cfg.ManageSchema)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.DefaultUserIDField == "" {
		return fmt.Errorf("default user id field must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.IdentityCacheSize <= 0 {
		return fmt.Errorf("identity cache size must be positive")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
