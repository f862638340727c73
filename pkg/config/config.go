// Package config loads node configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds node configuration.
type Config struct {
	Port     string
	LogLevel string
	// DatabaseURL selects the receipt/vote/score store. An empty value
	// runs the embedded sqlite database.
	DatabaseURL string
	SQLitePath  string
	// RedisAddr enables the Redis recalculation queue; empty runs the
	// in-process dispatcher.
	RedisAddr     string
	CatalogPath   string
	WebhookSecret string

	VotingWindow  time.Duration
	SweepInterval time.Duration

	OTLPEndpoint string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "trustmesh.db"
	}

	return &Config{
		Port:          port,
		LogLevel:      logLevel,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    sqlitePath,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		CatalogPath:   os.Getenv("CATALOG_PATH"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		VotingWindow:  getEnvDuration("VOTING_WINDOW", 30*24*time.Hour),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 6*time.Hour),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare integers are taken as hours.
	if h, err := strconv.Atoi(v); err == nil {
		return time.Duration(h) * time.Hour
	}
	return fallback
}
