package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the diary service.
// Environment variables are parsed from the ONION_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Storage: postgres or sqlite
	DBDriver    string `envconfig:"DB_DRIVER" default:"postgres"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/onion.db"`

	// Generative provider
	GeminiAPIKeys   []string      `envconfig:"GEMINI_API_KEYS"`
	GeminiModel     string        `envconfig:"GEMINI_MODEL" default:"gemini-3-flash-preview"`
	GeminiBaseURL   string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`

	// Analysis retry policy
	AnalysisMaxAttempts int           `envconfig:"ANALYSIS_MAX_ATTEMPTS" default:"3"`
	AnalysisRetryDelay  time.Duration `envconfig:"ANALYSIS_RETRY_DELAY" default:"1s"`

	// Profile aggregation
	BigFiveAlpha float64 `envconfig:"BIG_FIVE_ALPHA" default:"0.2"`

	// Life map
	LifeMapMonthlyLimit int `envconfig:"LIFE_MAP_MONTHLY_LIMIT" default:"2"`
	LifeMapMinEntries   int `envconfig:"LIFE_MAP_MIN_ENTRIES" default:"3"`
	TimelineMaxEntries  int `envconfig:"TIMELINE_MAX_ENTRIES" default:"200"`

	// Outbox recovery
	OutboxBatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
	OutboxInterval      time.Duration `envconfig:"OUTBOX_INTERVAL" default:"5s"`
	OutboxRecoveryDelay time.Duration `envconfig:"OUTBOX_RECOVERY_DELAY" default:"30s"`
	OutboxMaxAttempts   int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"8"`
	OutboxInProcess     bool          `envconfig:"OUTBOX_IN_PROCESS" default:"true"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthPingTimeoutSeconds int `envconfig:"HEALTH_PING_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates the driver selection and normalizes credentials.
func (c *Config) ResolveDefaults() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case "postgres":
		if c.PostgresDSN == "" && c.Environment != EnvTesting {
			return fmt.Errorf("POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	keys := c.GeminiAPIKeys[:0]
	for _, k := range c.GeminiAPIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.GeminiAPIKeys = keys

	if c.BigFiveAlpha <= 0 || c.BigFiveAlpha > 1 {
		return fmt.Errorf("BIG_FIVE_ALPHA must be in (0,1], got %v", c.BigFiveAlpha)
	}
	if c.AnalysisMaxAttempts <= 0 {
		c.AnalysisMaxAttempts = 1
	}
	if c.LifeMapMonthlyLimit < 0 {
		return fmt.Errorf("LIFE_MAP_MONTHLY_LIMIT must not be negative")
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Example: ONION_HTTP_PORT, ONION_GEMINI_API_KEYS=key1,key2
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("ONION", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("gemini_model", cfg.GeminiModel).
		Int("gemini_keys", len(cfg.GeminiAPIKeys)).
		Int("life_map_limit", cfg.LifeMapMonthlyLimit).
		Bool("outbox_in_process", cfg.OutboxInProcess).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment:               EnvTesting,
		HTTPPort:                  8080,
		DBDriver:                  "sqlite",
		SQLitePath:                ":memory:",
		GeminiAPIKeys:             []string{"test-key"},
		GeminiModel:               "gemini-3-flash-preview",
		GeminiBaseURL:             "http://127.0.0.1:0",
		ProviderTimeout:           5 * time.Second,
		AnalysisMaxAttempts:       3,
		AnalysisRetryDelay:        time.Millisecond,
		BigFiveAlpha:              0.2,
		LifeMapMonthlyLimit:       2,
		LifeMapMinEntries:         3,
		TimelineMaxEntries:        200,
		OutboxBatchSize:           50,
		OutboxInterval:            50 * time.Millisecond,
		OutboxRecoveryDelay:       0,
		OutboxMaxAttempts:         8,
		OutboxInProcess:           true,
		HealthIntervalSeconds:     1,
		HealthPingTimeoutSeconds: 1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
