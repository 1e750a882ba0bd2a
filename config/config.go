package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Discord configuration
	DiscordToken   string
	DiscordGuildID string

	// Database configuration
	DatabaseURL string

	// Shop data files
	CatalogPath string
	ServersPath string

	// Webhook configuration
	WebhookListenAddr string
	WebhookSecret     string

	// Shop configuration
	PurchaseTimeout     time.Duration
	ReservationMaxAge   time.Duration
	CommandMaxAttempts  int
	CommandRetryBackoff time.Duration

	// Playtime accrual configuration
	AccrualInterval time.Duration
	PointsPerMinute int64

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Discord
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		DiscordGuildID: os.Getenv("DISCORD_GUILD_ID"),

		// Database
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// Shop data files with defaults
		CatalogPath: envOr("CATALOG_PATH", "catalog.json"),
		ServersPath: envOr("SERVERS_PATH", "servers.json"),

		// Webhook
		WebhookListenAddr: envOr("WEBHOOK_LISTEN_ADDR", ":8085"),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),

		// Shop settings with defaults
		PurchaseTimeout:     2 * time.Minute,
		ReservationMaxAge:   10 * time.Minute,
		CommandMaxAttempts:  3,
		CommandRetryBackoff: 2 * time.Second,

		// Accrual settings with defaults
		AccrualInterval: 15 * time.Minute,
		PointsPerMinute: 1,

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if v := os.Getenv("PURCHASE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.PurchaseTimeout = d
		}
	}
	if v := os.Getenv("RESERVATION_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReservationMaxAge = d
		}
	}
	if v := os.Getenv("COMMAND_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.CommandMaxAttempts = n
		}
	}
	if v := os.Getenv("COMMAND_RETRY_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.CommandRetryBackoff = d
		}
	}
	if v := os.Getenv("ACCRUAL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.AccrualInterval = d
		}
	}
	if v := os.Getenv("POINTS_PER_MINUTE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.PointsPerMinute = n
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DiscordToken == "" {
			return nil, fmt.Errorf("DISCORD_TOKEN is required")
		}
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
