/*
Package configs is responsible for loading and parsing the application's configuration settings.

It reads operating system environment variables, including the running environment, port,
allowed WebSocket origins, relay buffer sizes, connection timeouts and the optional database.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// Relay Settings
	BusCapacity     int
	HistoryCapacity int
	AuthTimeout     time.Duration
	IdleTimeout     time.Duration

	// Database Settings. Empty means credentials are kept in memory.
	DatabaseDSN string
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and parses the application configuration from environment variables.
// It provides default values for each configuration item and performs necessary type conversions and validation.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	port, err := intFromEnv("PORT", 8100)
	if err != nil {
		return nil, err
	}
	if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", port, 1024, 65535)
	}
	cfg.Port = port

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		cfg.JWTSecret = "your_default_insecure_secret_key_change_me"
	}

	// --- Relay Settings ---
	if cfg.BusCapacity, err = intFromEnv("BUS_CAPACITY", 100); err != nil {
		return nil, err
	}
	if cfg.BusCapacity <= 0 {
		return nil, fmt.Errorf("BUS_CAPACITY must be positive, got %d", cfg.BusCapacity)
	}

	if cfg.HistoryCapacity, err = intFromEnv("HISTORY_CAPACITY", 0); err != nil {
		return nil, err
	}
	if cfg.HistoryCapacity < 0 {
		return nil, fmt.Errorf("HISTORY_CAPACITY must not be negative, got %d", cfg.HistoryCapacity)
	}

	if cfg.AuthTimeout, err = durationFromEnv("AUTH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdleTimeout, err = durationFromEnv("IDLE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	// --- Database Settings ---
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")

	return cfg, nil
}

func intFromEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return v, nil
}
