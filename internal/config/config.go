package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"travelai/internal/core"
)

type Config struct {
	// HTTP Server
	Port string

	// Session workspace
	DataBackend string
	SQLiteDSN   string

	// AMQP
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPExportQueue string

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleSummarySheet    string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	ExportInterval        time.Duration

	// Summary cache
	CacheSize int
	CacheTTL  time.Duration

	// Presentation defaults
	DefaultLocale string
	Timezone      string

	// Logging
	LogLevel  string
	LogFormat string
}

// DefaultSQLiteDSN keeps the workspace in a shared in-memory database that
// lives as long as the process.
const DefaultSQLiteDSN = "file:travelai?mode=memory&cache=shared"

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
		SQLiteDSN:   getEnv("SQLITE_DSN", DefaultSQLiteDSN),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "travelai"),
		AMQPQueue:       getEnv("AMQP_QUEUE", "settlement_events"),
		AMQPExportQueue: getEnv("AMQP_EXPORT_QUEUE", "settlement_exports"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSummarySheet:    getEnv("GOOGLE_SUMMARY_SHEET_NAME", "Settlement"),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		ExportInterval:        getEnvDuration("EXPORT_INTERVAL", time.Minute),

		CacheSize: getEnvInt("CACHE_SIZE", 256),
		CacheTTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),

		DefaultLocale: getEnv("DEFAULT_LOCALE", "en-US"),
		Timezone:      getEnv("TIMEZONE", "UTC"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// The workspace only ever holds the current editing session.
	if c.DataBackend == "sqlite" {
		if c.SQLiteDSN == "" {
			errors = append(errors, "SQLite DSN cannot be empty when using sqlite backend")
		} else if !IsMemoryDSN(c.SQLiteDSN) {
			errors = append(errors, fmt.Sprintf("SQLite DSN '%s' must be in-memory (mode=memory or :memory:)", c.SQLiteDSN))
		}
	}

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
		if c.AMQPExportQueue == c.AMQPQueue {
			errors = append(errors, "AMQP export queue must differ from the session events queue")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSummarySheet == "" {
			errors = append(errors, "Google summary sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
			errors = append(errors, "either GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
		}
		if c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
		if c.ExportInterval < time.Second {
			errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at least 1 second", c.ExportInterval))
		}
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	} else if c.CacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at most 100000", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	if _, err := language.Parse(c.DefaultLocale); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default locale '%s': %v", c.DefaultLocale, core.ErrInvalidLocale))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsMemoryDSN reports whether a SQLite DSN refers to an in-memory database.
func IsMemoryDSN(dsn string) bool {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") {
		return true
	}
	if i := strings.Index(dsn, "?"); i >= 0 {
		q, err := url.ParseQuery(dsn[i+1:])
		if err == nil && q.Get("mode") == "memory" {
			return true
		}
	}
	return false
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
