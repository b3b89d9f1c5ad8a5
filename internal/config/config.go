package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"housingledger/internal/log"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	SummaryCacheTTL    time.Duration

	// Database
	SQLiteDBPath      string
	SQLiteBusyTimeout time.Duration

	// AMQP; an empty URL disables messaging.
	AMQPURL         string
	AMQPExchange    string
	AMQPEventsQueue string
	AMQPIntakeQueue string

	// Workers
	BillingSchedule    string
	ConflictMaxRetries int
	SummaryConcurrency int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		SummaryCacheTTL:    getEnvDuration("SUMMARY_CACHE_TTL", 5*time.Second),

		SQLiteDBPath:      getEnv("SQLITE_DB_PATH", "./data/ledger.db"),
		SQLiteBusyTimeout: getEnvDuration("SQLITE_BUSY_TIMEOUT", 5*time.Second),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPEventsQueue: getEnv("AMQP_EVENTS_QUEUE", "ledger_events"),
		AMQPIntakeQueue: getEnv("AMQP_INTAKE_QUEUE", "county_payments"),

		BillingSchedule:    getEnv("BILLING_SCHEDULE", "@every 1h"),
		ConflictMaxRetries: getEnvInt("CONFLICT_MAX_RETRIES", 5),
		SummaryConcurrency: getEnvInt("SUMMARY_CONCURRENCY", 4),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.SummaryCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid summary cache TTL %v: must not be negative", c.SummaryCacheTTL))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}
	if c.SQLiteBusyTimeout < 100*time.Millisecond || c.SQLiteBusyTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid SQLite busy timeout %v: must be between 100ms and 1m", c.SQLiteBusyTimeout))
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
		if c.AMQPEventsQueue == "" || c.AMQPIntakeQueue == "" {
			errors = append(errors, "AMQP queue names cannot be empty when AMQP URL is provided")
		} else if c.AMQPEventsQueue == c.AMQPIntakeQueue {
			errors = append(errors, fmt.Sprintf("AMQP events and intake queues must differ, both are '%s'", c.AMQPEventsQueue))
		}
	}

	if _, err := cron.ParseStandard(c.BillingSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid billing schedule '%s': %v", c.BillingSchedule, err))
	}
	if c.ConflictMaxRetries < 1 || c.ConflictMaxRetries > 20 {
		errors = append(errors, fmt.Sprintf("invalid conflict retry budget %d: must be between 1 and 20", c.ConflictMaxRetries))
	}
	if c.SummaryConcurrency < 1 || c.SummaryConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid summary concurrency %d: must be between 1 and 64", c.SummaryConcurrency))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Logger builds the process logger for component from the log settings.
// Call after Validate.
func (c *Config) Logger(component string) *log.Logger {
	level, _ := log.ParseLevel(c.LogLevel)
	return log.New(log.Config{
		Level:     level,
		Format:    strings.ToLower(c.LogFormat),
		Component: component,
		Output:    os.Stdout,
	})
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
