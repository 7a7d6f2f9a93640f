// Package config loads application configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"crmforge/internal/schedule"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// OTLP collector endpoint for traces
	OTELEndpoint string

	// Worker loop settings
	WorkerConcurrency   int
	WorkerPollInterval  time.Duration
	WorkerMaxBackoff    time.Duration
	StaleClaimThreshold time.Duration

	// Business calendar defaults for the distribution engine
	BusinessStartHour int
	BusinessEndHour   int
	IncludeWeekends   bool
	DefaultDensity    string
}

// Load reads configuration from an optional YAML file and the
// environment. A .env file in the working directory is loaded first if
// present; environment variables use the CRMFORGE_ prefix.
func Load(configPath string) (*Config, error) {
	// Best-effort; missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CRMFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_port", 6161)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("worker_concurrency", 1)
	v.SetDefault("worker_poll_interval", "1s")
	v.SetDefault("worker_max_backoff", "30s")
	v.SetDefault("stale_claim_threshold", "10m")
	v.SetDefault("business_start_hour", 9)
	v.SetDefault("business_end_hour", 17)
	v.SetDefault("include_weekends", false)
	v.SetDefault("default_density", string(schedule.DensityUniform))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("crmforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		// A config file is optional; the environment can carry everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:         v.GetString("database_url"),
		HTTPPort:            v.GetInt("http_port"),
		OTELEndpoint:        v.GetString("otel_endpoint"),
		WorkerConcurrency:   v.GetInt("worker_concurrency"),
		WorkerPollInterval:  v.GetDuration("worker_poll_interval"),
		WorkerMaxBackoff:    v.GetDuration("worker_max_backoff"),
		StaleClaimThreshold: v.GetDuration("stale_claim_threshold"),
		BusinessStartHour:   v.GetInt("business_start_hour"),
		BusinessEndHour:     v.GetInt("business_end_hour"),
		IncludeWeekends:     v.GetBool("include_weekends"),
		DefaultDensity:      v.GetString("default_density"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("CRMFORGE_DATABASE_URL is required")
	}
	if cfg.BusinessEndHour <= cfg.BusinessStartHour {
		return nil, fmt.Errorf("business_end_hour must be after business_start_hour")
	}

	return cfg, nil
}

// ScheduleConfig adapts the calendar settings into an explicit value the
// distribution engine takes as input.
func (c *Config) ScheduleConfig() schedule.Config {
	return schedule.Config{
		BusinessStartHour: c.BusinessStartHour,
		BusinessEndHour:   c.BusinessEndHour,
		IncludeWeekends:   c.IncludeWeekends,
	}
}

// Density returns the configured default density shape.
func (c *Config) Density() schedule.Density {
	return schedule.Density(c.DefaultDensity)
}
