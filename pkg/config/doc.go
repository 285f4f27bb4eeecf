// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. An optional YAML file, named by
// FIELDTRAIL_CONFIG, is applied between the defaults and the environment.
//
// # Configuration Structure
//
// Database settings:
//
//	FIELDTRAIL_DATABASE_URL="postgres://localhost/app"
//
// Audit settings:
//
//	FIELDTRAIL_USER_ID_FIELD="user_id"
//	FIELDTRAIL_IDENTITY_CACHE_SIZE="4096"
//	FIELDTRAIL_MANAGE_SCHEMA="true"
//
// Logging:
//
//	FIELDTRAIL_LOG_LEVEL="info"  # debug, info, warn, error
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatalf("Failed to load config: %v", err)
//	}
//	db, err := sql.Open("postgres", cfg.DatabaseURL)
package config
