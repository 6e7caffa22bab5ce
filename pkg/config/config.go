package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for duitwise-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional - enables the shared rate-limit store)
	Redis RedisConfig `yaml:"redis"`

	// Agent orchestrator defaults
	Agent AgentConfig `yaml:"agent"`

	// Credential encryption key for stored provider API keys.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	// Server will fail to start if this is not set.
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML

	// RunMigrations applies pending schema migrations at startup.
	RunMigrations bool `yaml:"run_migrations" env:"RUN_MIGRATIONS" env-default:"false"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without the auth service.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWTSecret is the HMAC secret shared with the auth service.
	JWTSecret string `yaml:"-" env:"JWT_SECRET"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"duitwise"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"duitwise_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// Pool recycling knobs, in minutes. Lifetime bounds how long any
	// connection lives; idle bounds how long an unused one is kept.
	ConnLifetimeMins int `yaml:"conn_lifetime_mins" env:"PGCONN_LIFETIME_MINS" env-default:"60"`
	ConnIdleMins     int `yaml:"conn_idle_mins" env:"PGCONN_IDLE_MINS" env-default:"30"`
}

// URL returns the connection string for pgx.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration. An empty host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AgentConfig holds orchestrator defaults applied when a user's settings
// leave a field unset.
type AgentConfig struct {
	Temperature     float64 `yaml:"temperature" env:"AGENT_TEMPERATURE" env-default:"0.4"`
	MaxTokens       int     `yaml:"max_tokens" env:"AGENT_MAX_TOKENS" env-default:"1024"`
	ChunkSize       int     `yaml:"chunk_size" env:"AGENT_CHUNK_SIZE" env-default:"20"`
	ChunkDelayMs    int     `yaml:"chunk_delay_ms" env:"AGENT_CHUNK_DELAY_MS" env-default:"30"`
	RateLimitMax    int     `yaml:"rate_limit_max" env:"AGENT_RATE_LIMIT_MAX" env-default:"20"`
	RateLimitWindow int     `yaml:"rate_limit_window_secs" env:"AGENT_RATE_LIMIT_WINDOW_SECS" env-default:"60"`
}

// Load reads configuration from config.yaml (if present) and environment
// variables, validates it, and returns the result.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}

	cfg.Version = version

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.CredentialsKey == "" {
		return fmt.Errorf("CREDENTIALS_KEY is required")
	}
	if c.Auth.EnableVerification && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when auth verification is enabled")
	}
	if c.Agent.RateLimitMax <= 0 {
		return fmt.Errorf("rate_limit_max must be positive")
	}
	return nil
}
