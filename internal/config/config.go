package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries all service settings, sourced from environment variables.
type Config struct {
	Listen     string
	DataDir    string
	Password   string
	PublicHost string

	PortMin int
	PortMax int

	IdleThreshold time.Duration
	SweepInterval time.Duration

	GitHubToken string
	GitHubOwner string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Listen:        envOrDefault("PLAYGROUND_LISTEN", ":3000"),
		DataDir:       envOrDefault("PLAYGROUND_DATA_DIR", "/var/lib/playground"),
		Password:      os.Getenv("PLAYGROUND_PASSWORD"),
		PublicHost:    envOrDefault("PLAYGROUND_PUBLIC_HOST", "localhost"),
		GitHubToken:   os.Getenv("GITHUB_TOKEN"),
		GitHubOwner:   os.Getenv("GITHUB_USERNAME"),
		IdleThreshold: 15 * time.Minute,
		SweepInterval: time.Minute,
		PortMin:       8100,
		PortMax:       8199,
	}

	if cfg.Password == "" {
		return nil, fmt.Errorf("PLAYGROUND_PASSWORD is required")
	}

	var err error
	if cfg.PortMin, err = envInt("PLAYGROUND_PORT_MIN", cfg.PortMin); err != nil {
		return nil, err
	}
	if cfg.PortMax, err = envInt("PLAYGROUND_PORT_MAX", cfg.PortMax); err != nil {
		return nil, err
	}
	if cfg.PortMax < cfg.PortMin {
		return nil, fmt.Errorf("PLAYGROUND_PORT_MAX must be >= PLAYGROUND_PORT_MIN")
	}

	if cfg.IdleThreshold, err = envDuration("PLAYGROUND_IDLE_THRESHOLD", cfg.IdleThreshold); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = envDuration("PLAYGROUND_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 15m: %w", key, err)
	}
	return d, nil
}
