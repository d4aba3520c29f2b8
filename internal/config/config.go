package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	// Storage
	DataBackend  string
	SQLiteDBPath string
	DatabaseURL  string

	// Report cache
	RedisURL       string
	ReportCacheTTL time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets report mirror
	GoogleSpreadsheetID      string
	GoogleReportsSheetName   string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Logging
	LogLevel  string
	LogFormat string

	// Timeouts
	OperationTimeout time.Duration
	RestoreTimeout   time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("DATA_BACKEND", BackendSQLite)
	v.SetDefault("SQLITE_DB_PATH", "./data/ledger.db")
	v.SetDefault("REPORT_CACHE_TTL", 5*time.Minute)
	v.SetDefault("AMQP_EXCHANGE", "ledger")
	v.SetDefault("AMQP_QUEUE", "ledger_events")
	v.SetDefault("GOOGLE_REPORTS_SHEET_NAME", "Reports")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("OPERATION_TIMEOUT", 30*time.Second)
	v.SetDefault("RESTORE_TIMEOUT", 10*time.Minute)
}

// Load reads the configuration from the environment.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	str := func(key string) string { return strings.TrimSpace(v.GetString(key)) }
	return &Config{
		DataBackend:  strings.ToLower(str("DATA_BACKEND")),
		SQLiteDBPath: str("SQLITE_DB_PATH"),
		DatabaseURL:  str("DATABASE_URL"),

		RedisURL:       str("REDIS_URL"),
		ReportCacheTTL: v.GetDuration("REPORT_CACHE_TTL"),

		AMQPURL:      str("AMQP_URL"),
		AMQPExchange: str("AMQP_EXCHANGE"),
		AMQPQueue:    str("AMQP_QUEUE"),

		GoogleSpreadsheetID:      str("GOOGLE_SPREADSHEET_ID"),
		GoogleReportsSheetName:   str("GOOGLE_REPORTS_SHEET_NAME"),
		GoogleServiceAccountFile: str("GOOGLE_SERVICE_ACCOUNT_FILE"),
		GoogleServiceAccountJSON: str("GOOGLE_SERVICE_ACCOUNT_JSON"),

		LogLevel:  strings.ToLower(str("LOG_LEVEL")),
		LogFormat: strings.ToLower(str("LOG_FORMAT")),

		OperationTimeout: v.GetDuration("OPERATION_TIMEOUT"),
		RestoreTimeout:   v.GetDuration("RESTORE_TIMEOUT"),
	}
}

// SheetsEnabled reports whether the report mirror has what it needs.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var errors []string

	validBackends := []string{BackendSQLite, BackendPostgres, BackendMemory}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
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
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	}

	if c.RedisURL != "" && strings.Contains(c.RedisURL, "://") {
		if u, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid REDIS_URL: %v", err))
		} else if u.Scheme != "redis" && u.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid REDIS_URL scheme '%s': must be 'redis' or 'rediss'", u.Scheme))
		}
	}
	if c.ReportCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must be positive", c.ReportCacheTTL))
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
	}

	if c.SheetsEnabled() {
		if c.GoogleReportsSheetName == "" {
			errors = append(errors, "Google reports sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the report mirror")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.OperationTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid operation timeout %v: must be at least 1 second", c.OperationTimeout))
	}
	if c.RestoreTimeout < c.OperationTimeout {
		errors = append(errors, fmt.Sprintf("invalid restore timeout %v: must not be shorter than the operation timeout", c.RestoreTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
