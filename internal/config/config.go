package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// Database
	SQLiteDBPath string
	DataBackend  string

	// AMQP. An empty URL disables the async notification lane; events are
	// persisted directly instead.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Job schedules, standard 5-field cron specs.
	RecurrenceSpec     string
	BudgetSweepSpec    string
	MonthlySummarySpec string
	CleanupSpec        string

	// Monitoring
	BudgetSweepRatio      float64
	NotificationRetention time.Duration
	AnalyticsCacheTTL     time.Duration
}

func Load() *Config {
	return &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "notifications"),

		RecurrenceSpec:     getEnv("RECURRENCE_CRON", "0 0 * * *"),
		BudgetSweepSpec:    getEnv("BUDGET_SWEEP_CRON", "0 19 * * *"),
		MonthlySummarySpec: getEnv("MONTHLY_SUMMARY_CRON", "0 8 1 * *"),
		CleanupSpec:        getEnv("CLEANUP_CRON", "0 3 * * 0"),

		BudgetSweepRatio:      getEnvFloat("BUDGET_SWEEP_RATIO", 0.9),
		NotificationRetention: getEnvDuration("NOTIFICATION_RETENTION", 90*24*time.Hour),
		AnalyticsCacheTTL:     getEnvDuration("ANALYTICS_CACHE_TTL", 5*time.Minute),
	}
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errs []string

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	specParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for name, spec := range map[string]string{
		"RECURRENCE_CRON":      c.RecurrenceSpec,
		"BUDGET_SWEEP_CRON":    c.BudgetSweepSpec,
		"MONTHLY_SUMMARY_CRON": c.MonthlySummarySpec,
		"CLEANUP_CRON":         c.CleanupSpec,
	} {
		if _, err := specParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Sprintf("invalid cron spec for %s '%s': %v", name, spec, err))
		}
	}

	if c.BudgetSweepRatio <= 0 || c.BudgetSweepRatio > 1 {
		errs = append(errs, fmt.Sprintf("invalid budget sweep ratio %v: must be in (0, 1]", c.BudgetSweepRatio))
	}

	if c.NotificationRetention < 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid notification retention %v: must be at least 24 hours", c.NotificationRetention))
	}

	if c.AnalyticsCacheTTL < time.Second {
		errs = append(errs, fmt.Sprintf("invalid analytics cache TTL %v: must be at least 1 second", c.AnalyticsCacheTTL))
	} else if c.AnalyticsCacheTTL > time.Hour {
		errs = append(errs, fmt.Sprintf("invalid analytics cache TTL %v: must be at most 1 hour", c.AnalyticsCacheTTL))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
