package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DECISIONBOT_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DECISIONBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DECISIONBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DECISIONBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DECISIONBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DECISIONBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DECISIONBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DECISIONBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DECISIONBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DECISIONBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DECISIONBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DECISIONBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DECISIONBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DECISIONBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DECISIONBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DECISIONBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DECISIONBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DECISIONBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DECISIONBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DECISIONBOT_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "DECISIONBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DECISIONBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DECISIONBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DECISIONBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "DECISIONBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DECISIONBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DECISIONBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DECISIONBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DECISIONBOT_S3_FORCE_PATH_STYLE")

	// ── Decision ──
	setInt(&cfg.Decision.CacheCapacity, "DECISIONBOT_DECISION_CACHE_CAPACITY")
	setDuration(&cfg.Decision.CacheTTL, "DECISIONBOT_DECISION_CACHE_TTL")
	setInt(&cfg.Decision.MaxRecords, "DECISIONBOT_DECISION_MAX_RECORDS")
	setBool(&cfg.Decision.RecordDecisions, "DECISIONBOT_DECISION_RECORD_DECISIONS")

	// ── Execution ──
	setStr(&cfg.Execution.AutomationsDir, "DECISIONBOT_EXECUTION_AUTOMATIONS_DIR")
	setBool(&cfg.Execution.SeedStore, "DECISIONBOT_EXECUTION_SEED_STORE")
	setStr(&cfg.Execution.Timezone, "DECISIONBOT_EXECUTION_TIMEZONE")
	setInt(&cfg.Execution.HistoryLimit, "DECISIONBOT_EXECUTION_HISTORY_LIMIT")
	setDuration(&cfg.Execution.SchedulerInterval, "DECISIONBOT_EXECUTION_SCHEDULER_INTERVAL")
	setDuration(&cfg.Execution.TriggerCooldown, "DECISIONBOT_EXECUTION_TRIGGER_COOLDOWN")
	setDuration(&cfg.Execution.StaleAfter, "DECISIONBOT_EXECUTION_STALE_AFTER")
	setInt(&cfg.Execution.MaxConcurrent, "DECISIONBOT_EXECUTION_MAX_CONCURRENT")
	setBool(&cfg.Execution.StreamExecutions, "DECISIONBOT_EXECUTION_STREAM_EXECUTIONS")
	setDuration(&cfg.Execution.ExportInterval, "DECISIONBOT_EXECUTION_EXPORT_INTERVAL")
	setStr(&cfg.Execution.ExportPrefix, "DECISIONBOT_EXECUTION_EXPORT_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DECISIONBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DECISIONBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DECISIONBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DECISIONBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "DECISIONBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "DECISIONBOT_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DECISIONBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DECISIONBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DECISIONBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DECISIONBOT_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.PerSecond, "DECISIONBOT_NOTIFY_PER_SECOND")
	setInt(&cfg.Notify.MaxRetries, "DECISIONBOT_NOTIFY_MAX_RETRIES")

	// ── Top-level ──
	setStr(&cfg.Mode, "DECISIONBOT_MODE")
	setStr(&cfg.LogLevel, "DECISIONBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
