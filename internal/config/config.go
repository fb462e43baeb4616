package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port            string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration

	// Dashboard credentials; auth is disabled when DashboardUser is empty
	DashboardUser     string
	DashboardPassword string

	// Database
	SQLiteDBPath string

	// Ingestion
	StrictDates   bool
	IngestWorkers int

	// Logging
	LogLevel string

	// AMQP events; disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Snapshot worker output
	SnapshotDir    string
	SnapshotFormat string

	// Google Sheets import source
	GoogleSpreadsheetID          string
	GoogleSheetRange             string
	GoogleServiceAccountFile     string
	GoogleServiceAccountJSON     string
	GoogleApplicationCredentials string
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8081"),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_BYTES", 32<<20)),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DashboardUser:     getEnv("DASHBOARD_USER", ""),
		DashboardPassword: getEnv("DASHBOARD_PASSWORD", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/incomes.db"),

		StrictDates:   getEnvBool("STRICT_DATES", false),
		IngestWorkers: getEnvInt("INGEST_WORKERS", 4),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "incomes"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "income_events"),

		SnapshotDir:    getEnv("SNAPSHOT_DIR", "./data/snapshots"),
		SnapshotFormat: strings.ToLower(getEnv("SNAPSHOT_FORMAT", "csv")),

		GoogleSpreadsheetID:          getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetRange:             getEnv("GOOGLE_SHEET_RANGE", "Incomes!A:D"),
		GoogleServiceAccountFile:     getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON:     getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleApplicationCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
	}

	return cfg
}

// EventsEnabled reports whether domain events are published over AMQP.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

// AuthEnabled reports whether dashboard credentials are required.
func (c *Config) AuthEnabled() bool {
	return c.DashboardUser != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate SQLite path; create its directory on first run
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	if c.IngestWorkers < 1 {
		errors = append(errors, fmt.Sprintf("invalid ingest workers %d: must be at least 1", c.IngestWorkers))
	} else if c.IngestWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid ingest workers %d: must be at most 64", c.IngestWorkers))
	}

	if c.MaxUploadBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at least 1024 bytes", c.MaxUploadBytes))
	}

	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	} else if c.ShutdownTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at most 5 minutes", c.ShutdownTimeout))
	}

	if c.DashboardUser != "" && c.DashboardPassword == "" {
		errors = append(errors, "DASHBOARD_PASSWORD is required when DASHBOARD_USER is set")
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	validFormats := []string{"csv", "xlsx", "json"}
	if !slices.Contains(validFormats, c.SnapshotFormat) {
		errors = append(errors, fmt.Sprintf("invalid snapshot format '%s': must be one of %v", c.SnapshotFormat, validFormats))
	}

	// Validate Google Sheets source if a spreadsheet is configured
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetRange == "" {
			errors = append(errors, "Google sheet range is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
