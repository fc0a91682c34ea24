// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	APIBaseURL     string
	DBPath         string
	SessionID      string
	TreatmentGroup string
	RetryInterval  time.Duration
	Stub           StubConfig
}

// StubConfig controls the local agent stub server.
type StubConfig struct {
	Port         string
	AsyncReplies bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:     getEnv("CHATBOT_API_URL", "http://localhost:8080"),
		DBPath:         getEnv("DB_PATH", "./data/botsync.db"),
		SessionID:      getEnv("SESSION_ID", "local"),
		TreatmentGroup: getEnv("TREATMENT_GROUP", "control"),
		RetryInterval:  getEnvDuration("RETRY_INTERVAL", 2*time.Second),
		Stub: StubConfig{
			Port:         getEnv("STUB_PORT", "8080"),
			AsyncReplies: getEnvBool("STUB_ASYNC_REPLIES", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("CHATBOT_API_URL cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionID == "" {
		return fmt.Errorf("SESSION_ID cannot be empty")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("RETRY_INTERVAL must be > 0")
	}
	if c.Stub.Port == "" {
		return fmt.Errorf("STUB_PORT cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
		return d
	}
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
