package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/redis/go-redis/v9"
)

// Config holds all configuration for the proposal worker
type Config struct {
	// Worker configuration
	WorkerID string `env:"WORKER_ID" envDefault:"proposal-1"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Stream configuration
	StreamKey     string        `env:"STREAM_KEY" envDefault:"proposal.render"`
	ConsumerGroup string        `env:"CONSUMER_GROUP" envDefault:"proposal-workers"`
	ResultStream  string        `env:"RESULT_STREAM" envDefault:"proposal.rendered"`
	BlockTime     time.Duration `env:"BLOCK_TIME" envDefault:"1s"`

	// Block catalog configuration
	CatalogFile  string `env:"CATALOG_FILE"`
	CatalogWatch bool   `env:"CATALOG_WATCH" envDefault:"false"`

	// Template engine configuration
	EscapeHTML     bool `env:"ESCAPE_HTML" envDefault:"true"`
	MaxLoopDepth   int  `env:"MAX_LOOP_DEPTH" envDefault:"8"`
	MaxOutputBytes int  `env:"MAX_OUTPUT_BYTES" envDefault:"4194304"`

	// Render cache configuration
	RenderCacheTTL time.Duration `env:"RENDER_CACHE_TTL" envDefault:"1h"`

	// CEL configuration
	CELEnabled bool `env:"CEL_ENABLED" envDefault:"true"`

	// Health check configuration
	HealthPort int `env:"HEALTH_PORT" envDefault:"8082"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs []error
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	require(c.WorkerID != "", "WORKER_ID is required")
	require(c.RedisAddr != "", "REDIS_ADDR is required")
	require(c.StreamKey != "", "STREAM_KEY is required")
	require(c.ConsumerGroup != "", "CONSUMER_GROUP is required")
	require(c.ResultStream != "", "RESULT_STREAM is required")
	require(c.ResultStream != c.StreamKey, "RESULT_STREAM must differ from STREAM_KEY")
	require(c.BlockTime > 0, "BLOCK_TIME must be positive")

	require(!c.CatalogWatch || c.CatalogFile != "", "CATALOG_WATCH requires CATALOG_FILE")

	require(c.MaxLoopDepth >= 0, "MAX_LOOP_DEPTH must be non-negative")
	require(c.MaxOutputBytes >= 0, "MAX_OUTPUT_BYTES must be non-negative")
	require(c.RenderCacheTTL >= 0, "RENDER_CACHE_TTL must be non-negative")

	require(c.HealthPort > 0 && c.HealthPort <= 65535, "HEALTH_PORT must be between 1 and 65535")
	require(isValidLogLevel(c.LogLevel), "LOG_LEVEL must be one of: debug, info, warn, error")

	return errors.Join(errs...)
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// RedisOptions returns Redis client options
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{WorkerID=%s, RedisAddr=%s, RedisDB=%d, StreamKey=%s, ConsumerGroup=%s, ResultStream=%s, "+
			"CatalogFile=%s, EscapeHTML=%v, MaxLoopDepth=%d, MaxOutputBytes=%d, CELEnabled=%v, HealthPort=%d, LogLevel=%s}",
		c.WorkerID,
		c.RedisAddr,
		c.RedisDB,
		c.StreamKey,
		c.ConsumerGroup,
		c.ResultStream,
		c.CatalogFile,
		c.EscapeHTML,
		c.MaxLoopDepth,
		c.MaxOutputBytes,
		c.CELEnabled,
		c.HealthPort,
		c.LogLevel,
	)
}
