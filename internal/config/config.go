// Package config defines the top-level configuration for decisionbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DECISIONBOT_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Decision  DecisionConfig  `toml:"decision"`
	Execution ExecutionConfig `toml:"execution"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// DecisionConfig tunes the decision engine.
type DecisionConfig struct {
	CacheCapacity   int      `toml:"cache_capacity"`
	CacheTTL        duration `toml:"cache_ttl"`
	MaxRecords      int      `toml:"max_records"`
	RecordDecisions bool     `toml:"record_decisions"`
}

// ExecutionConfig tunes the automation engine and its scheduler.
type ExecutionConfig struct {
	AutomationsDir    string   `toml:"automations_dir"`
	SeedStore         bool     `toml:"seed_store"`
	Timezone          string   `toml:"timezone"`
	HistoryLimit      int      `toml:"history_limit"`
	SchedulerInterval duration `toml:"scheduler_interval"`
	TriggerCooldown   duration `toml:"trigger_cooldown"`
	StaleAfter        duration `toml:"stale_after"`
	MaxConcurrent     int      `toml:"max_concurrent"`
	StreamExecutions  bool     `toml:"stream_executions"`
	ExportInterval    duration `toml:"export_interval"`
	ExportPrefix      string   `toml:"export_prefix"`
}

// Location resolves Timezone. An empty value means UTC.
func (e ExecutionConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(e.Timezone)
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	PerSecond         float64  `toml:"per_second"`
	MaxRetries        int      `toml:"max_retries"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "decisionbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "decisionbot-data",
			ForcePathStyle: true,
		},
		Decision: DecisionConfig{
			CacheCapacity:   1000,
			CacheTTL:        duration{30 * time.Second},
			MaxRecords:      10000,
			RecordDecisions: true,
		},
		Execution: ExecutionConfig{
			AutomationsDir:    "automations",
			SeedStore:         true,
			Timezone:          "America/New_York",
			HistoryLimit:      1000,
			SchedulerInterval: duration{time.Minute},
			TriggerCooldown:   duration{30 * time.Second},
			StaleAfter:        duration{30 * time.Minute},
			MaxConcurrent:     8,
			StreamExecutions:  true,
			ExportInterval:    duration{24 * time.Hour},
			ExportPrefix:      "executions",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:     []string{"automation", "position_opened", "position_closed", "error"},
			PerSecond:  1,
			MaxRetries: 3,
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":   true,
	"once":  true,
	"test":  true,
	"serve": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, once, test, serve)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Decision
	if c.Decision.CacheCapacity < 1 {
		errs = append(errs, "decision: cache_capacity must be >= 1")
	}
	if c.Decision.CacheTTL.Duration <= 0 {
		errs = append(errs, "decision: cache_ttl must be > 0")
	}
	if c.Decision.MaxRecords < 1 {
		errs = append(errs, "decision: max_records must be >= 1")
	}

	// Execution
	if _, err := c.Execution.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("execution: timezone %q: %v", c.Execution.Timezone, err))
	}
	if c.Execution.HistoryLimit < 1 {
		errs = append(errs, "execution: history_limit must be >= 1")
	}
	if c.Execution.SchedulerInterval.Duration <= 0 {
		errs = append(errs, "execution: scheduler_interval must be > 0")
	}
	if c.Execution.MaxConcurrent < 1 {
		errs = append(errs, "execution: max_concurrent must be >= 1")
	}
	if c.Execution.ExportInterval.Duration < 0 {
		errs = append(errs, "execution: export_interval must not be negative")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.PerSecond < 0 {
		errs = append(errs, "notify: per_second must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
