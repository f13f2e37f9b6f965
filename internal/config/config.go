// Package config provides configuration loading and management for the
// gateway. It handles environment variable parsing and provides default
// values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package
// initialization. In development it loads .env and .env.local if they
// exist; in production it relies solely on system environment variables.
// godotenv.Load does not override already-set variables, preserving
// OS env > .env precedence.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the gateway.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	MetricsPort string // Port for the health/metrics HTTP listener
	DatabaseDSN string // Database connection string (PostgreSQL)
	NATSURL     string // NATS server URL for the device transport
	EventsURL   string // NATS server URL for the write pipeline (defaults to NATSURL)
	AuthURL     string // External auth service URL; empty uses the store-backed resolver

	// Rate limiting (local token-bucket oracle)
	RateLimitEnabled    bool    // Whether the local oracle is active
	RatePerDevice       float64 // Sustained requests per second per device
	RatePerAccount      float64 // Sustained requests per second per account
	RateBurst           int     // Shared burst size

	// Resolver cache
	AuthCacheTTLSeconds int // TTL for resolved device keys

	// Pagination
	DeviceMaxLimit int // Page clamp on the device channel
}

// Default configuration values used when environment variables are not set
const (
	defaultEnv            = "dev"
	defaultMetricsPort    = "9100"
	defaultRatePerDevice  = 5.0
	defaultRatePerAccount = 20.0
	defaultRateBurst      = 10
	defaultAuthCacheTTL   = 60
	defaultDeviceMaxLimit = 50
)

// Load reads environment variables and produces a Config suitable for
// wiring the service.
func Load() (Config, error) {
	cfg := Config{}

	if env, exists := os.LookupEnv("GW_ENV"); exists {
		cfg.Env = env
	} else {
		cfg.Env = defaultEnv
	}

	if port, exists := os.LookupEnv("GW_METRICS_PORT"); exists {
		cfg.MetricsPort = port
	} else {
		cfg.MetricsPort = defaultMetricsPort
	}

	if dsn, exists := os.LookupEnv("GW_DB_DSN"); exists {
		cfg.DatabaseDSN = dsn
	}

	if natsURL, exists := os.LookupEnv("GW_NATS_URL"); exists {
		cfg.NATSURL = natsURL
	}

	if eventsURL, exists := os.LookupEnv("GW_EVENTS_NATS_URL"); exists {
		cfg.EventsURL = eventsURL
	} else {
		cfg.EventsURL = cfg.NATSURL
	}

	if authURL, exists := os.LookupEnv("GW_AUTH_URL"); exists {
		cfg.AuthURL = authURL
	}

	cfg.RateLimitEnabled = true
	if v, exists := os.LookupEnv("GW_RATE_LIMIT_ENABLED"); exists {
		cfg.RateLimitEnabled = parseBool(v)
	}
	cfg.RatePerDevice = parseFloat(os.Getenv("GW_RATE_PER_DEVICE"), defaultRatePerDevice)
	cfg.RatePerAccount = parseFloat(os.Getenv("GW_RATE_PER_ACCOUNT"), defaultRatePerAccount)
	cfg.RateBurst = parseInt(os.Getenv("GW_RATE_BURST"), defaultRateBurst)

	cfg.AuthCacheTTLSeconds = parseInt(os.Getenv("GW_AUTH_CACHE_TTL"), defaultAuthCacheTTL)
	cfg.DeviceMaxLimit = parseInt(os.Getenv("GW_DEVICE_MAX_LIMIT"), defaultDeviceMaxLimit)

	// The device transport is the service's whole purpose; refuse to start
	// without it outside of dev.
	if cfg.NATSURL == "" && cfg.Env != "dev" {
		return cfg, fmt.Errorf("GW_NATS_URL is required")
	}

	return cfg, nil
}

// parseBool converts a string to a boolean value, returning false if parsing fails
func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return b
}

// parseInt converts a string to an int, returning the fallback if unset or invalid
func parseInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// parseFloat converts a string to a float64, returning the fallback if unset or invalid
func parseFloat(v string, fallback float64) float64 {
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}
