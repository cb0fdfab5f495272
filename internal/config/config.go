// Package config loads service configuration from env with an
// optional yaml overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	analytics "basin-analytics/internal/analytics/domain"
)

// Config defines basin-analytics service configuration.
type Config struct {
	HTTPAddr           string `yaml:"http_addr"`
	DatabaseDriver     string `yaml:"database_driver"`
	DatabaseDSN        string `yaml:"database_dsn"`
	JWTSecret          string `yaml:"jwt_secret"`
	MinimumEventLength int    `yaml:"minimum_event_length"`
	DefaultReducer     string `yaml:"default_reducer"`
	ProgressLog        bool   `yaml:"progress_log"`
}

// Load builds configuration from env defaults overlaid by the yaml
// file named by BASIN_CONFIG, when set.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseDriver:     getenvDefault("DATABASE_DRIVER", "memory"),
		DatabaseDSN:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		MinimumEventLength: getenvIntDefault("MINIMUM_EVENT_LENGTH", 1),
		DefaultReducer:     getenvDefault("DEFAULT_REDUCER", "sum"),
		ProgressLog:        getenvBoolDefault("PROGRESS_LOG", true),
	}

	if path := os.Getenv("BASIN_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DatabaseDriver {
	case "memory":
	case "postgres", "sqlite":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("config: %s driver requires a dsn", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.DatabaseDriver)
	}
	if c.MinimumEventLength < 1 {
		return errors.New("config: minimum event length must be at least 1")
	}
	if _, err := analytics.ParseReducer(c.DefaultReducer); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
