// Package config provides configuration loading and management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Base URLs for the upstream feeds
	SpotURL    string
	FXURL      string
	HistoryURL string

	// API keys for the upstream feeds, keyed by feed name ("spot", "fx", "history")
	APIKeys map[string]string

	// Request timeout for outbound feed calls
	RequestTimeout time.Duration

	// Polling intervals per market
	IndiaPollInterval    time.Duration
	ShanghaiPollInterval time.Duration

	// QuoteMaxAge is how old a feed quote may be before it is rejected
	QuoteMaxAge time.Duration

	// HistoryDays is the default historical window length
	HistoryDays int

	// Regional adjustment constants, decimals (0.10 = 10%)
	IndiaDutyPct       float64
	IndiaGSTPct        float64
	IndiaPremiumPct    float64
	ShanghaiVATPct     float64
	ShanghaiPremiumPct float64

	// Price guard thresholds
	MaxMovePct    float64
	GuardCooldown time.Duration

	// Optional Redis snapshot cache; disabled when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SnapshotTTL   time.Duration

	// Optional Postgres history store; disabled when DatabaseURL is empty
	DatabaseURL string

	// Optional operator alert webhook
	WebhookURL    string
	WebhookAPIKey string

	// Rate limiting for the public endpoints
	RateLimitRPS   float64
	RateLimitBurst int

	// OpenTelemetry endpoint for observability
	OtelEndpoint string
}

// Load creates a new Config from environment variables
func Load() Config {
	return Config{
		Port:                 GetEnvOrDefault("PORT", "8080"),
		SpotURL:              GetEnvOrDefault("SPOT_FEED_URL", "https://api.metalfeeds.example.com"),
		FXURL:                GetEnvOrDefault("FX_FEED_URL", "https://api.fxfeeds.example.com"),
		HistoryURL:           GetEnvOrDefault("HISTORY_FEED_URL", "https://api.metalfeeds.example.com"),
		APIKeys: map[string]string{
			"spot":    os.Getenv("SPOT_FEED_API_KEY"),
			"fx":      os.Getenv("FX_FEED_API_KEY"),
			"history": os.Getenv("HISTORY_FEED_API_KEY"),
		},
		RequestTimeout:       GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		IndiaPollInterval:    GetEnvAsDuration("INDIA_POLL_INTERVAL", 30*time.Second),
		ShanghaiPollInterval: GetEnvAsDuration("SHANGHAI_POLL_INTERVAL", 60*time.Second),
		QuoteMaxAge:          GetEnvAsDuration("QUOTE_MAX_AGE", 15*time.Minute),
		HistoryDays:          GetEnvAsInt("HISTORY_DAYS", 7),
		IndiaDutyPct:         GetEnvAsFloat("INDIA_DUTY_PCT", 0.10),
		IndiaGSTPct:          GetEnvAsFloat("INDIA_GST_PCT", 0.03),
		IndiaPremiumPct:      GetEnvAsFloat("INDIA_PREMIUM_PCT", 0),
		ShanghaiVATPct:       GetEnvAsFloat("SHANGHAI_VAT_PCT", 0.13),
		ShanghaiPremiumPct:   GetEnvAsFloat("SHANGHAI_PREMIUM_PCT", 0.015),
		MaxMovePct:           GetEnvAsFloat("MAX_MOVE_PCT", 0.20),
		GuardCooldown:        GetEnvAsDuration("GUARD_COOLDOWN", 5*time.Minute),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              GetEnvAsInt("REDIS_DB", 0),
		SnapshotTTL:          GetEnvAsDuration("SNAPSHOT_TTL", 24*time.Hour),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		WebhookURL:           os.Getenv("WEBHOOK_URL"),
		WebhookAPIKey:        os.Getenv("WEBHOOK_API_KEY"),
		RateLimitRPS:         GetEnvAsFloat("RATE_LIMIT_RPS", 10.0),
		RateLimitBurst:       GetEnvAsInt("RATE_LIMIT_BURST", 20),
		OtelEndpoint:         GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// fileConfig mirrors the subset of Config that may be set from a YAML file.
// File values override environment values when present.
type fileConfig struct {
	Port                 string  `yaml:"port"`
	SpotURL              string  `yaml:"spot_feed_url"`
	FXURL                string  `yaml:"fx_feed_url"`
	HistoryURL           string  `yaml:"history_feed_url"`
	RequestTimeout       string  `yaml:"request_timeout"`
	IndiaPollInterval    string  `yaml:"india_poll_interval"`
	ShanghaiPollInterval string  `yaml:"shanghai_poll_interval"`
	HistoryDays          int     `yaml:"history_days"`
	IndiaDutyPct         *float64 `yaml:"india_duty_pct"`
	IndiaGSTPct          *float64 `yaml:"india_gst_pct"`
	IndiaPremiumPct      *float64 `yaml:"india_premium_pct"`
	ShanghaiVATPct       *float64 `yaml:"shanghai_vat_pct"`
	ShanghaiPremiumPct   *float64 `yaml:"shanghai_premium_pct"`
	MaxMovePct           *float64 `yaml:"max_move_pct"`
	RedisAddr            string  `yaml:"redis_addr"`
	DatabaseURL          string  `yaml:"database_url"`
}

// ApplyFile overlays configuration from a YAML file onto the Config.
// Unset file fields leave the existing values untouched.
func (c *Config) ApplyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.SpotURL != "" {
		c.SpotURL = fc.SpotURL
	}
	if fc.FXURL != "" {
		c.FXURL = fc.FXURL
	}
	if fc.HistoryURL != "" {
		c.HistoryURL = fc.HistoryURL
	}
	if fc.RequestTimeout != "" {
		if d, err := time.ParseDuration(fc.RequestTimeout); err == nil {
			c.RequestTimeout = d
		}
	}
	if fc.IndiaPollInterval != "" {
		if d, err := time.ParseDuration(fc.IndiaPollInterval); err == nil {
			c.IndiaPollInterval = d
		}
	}
	if fc.ShanghaiPollInterval != "" {
		if d, err := time.ParseDuration(fc.ShanghaiPollInterval); err == nil {
			c.ShanghaiPollInterval = d
		}
	}
	if fc.HistoryDays > 0 {
		c.HistoryDays = fc.HistoryDays
	}
	if fc.IndiaDutyPct != nil {
		c.IndiaDutyPct = *fc.IndiaDutyPct
	}
	if fc.IndiaGSTPct != nil {
		c.IndiaGSTPct = *fc.IndiaGSTPct
	}
	if fc.IndiaPremiumPct != nil {
		c.IndiaPremiumPct = *fc.IndiaPremiumPct
	}
	if fc.ShanghaiVATPct != nil {
		c.ShanghaiVATPct = *fc.ShanghaiVATPct
	}
	if fc.ShanghaiPremiumPct != nil {
		c.ShanghaiPremiumPct = *fc.ShanghaiPremiumPct
	}
	if fc.MaxMovePct != nil {
		c.MaxMovePct = *fc.MaxMovePct
	}
	if fc.RedisAddr != "" {
		c.RedisAddr = fc.RedisAddr
	}
	if fc.DatabaseURL != "" {
		c.DatabaseURL = fc.DatabaseURL
	}

	return nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
