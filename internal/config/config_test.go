package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Decision.CacheTTL.Duration)
	assert.Equal(t, 1000, cfg.Decision.CacheCapacity)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "serve"

[decision]
cache_capacity = 50
cache_ttl = "5s"

[execution]
timezone = "UTC"
scheduler_interval = "15s"
`), 0o644))

	t.Setenv("DECISIONBOT_REDIS_ADDR", "redis:6380")
	t.Setenv("DECISIONBOT_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("DECISIONBOT_EXECUTION_MAX_CONCURRENT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, 50, cfg.Decision.CacheCapacity)
	assert.Equal(t, 5*time.Second, cfg.Decision.CacheTTL.Duration)
	assert.Equal(t, 15*time.Second, cfg.Execution.SchedulerInterval.Duration)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 8, cfg.Execution.MaxConcurrent)
	assert.Equal(t, 10000, cfg.Decision.MaxRecords)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "run", cfg.Mode)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = `), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Decision.CacheCapacity = 0
	cfg.Execution.Timezone = "Mars/Olympus"
	cfg.Notify.TelegramToken = "token"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "cache_capacity")
	assert.Contains(t, msg, "Mars/Olympus")
	assert.Contains(t, msg, "telegram_chat_id")
}

func TestValidateSkipsDisabledBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Enabled = false
	cfg.Redis.Addr = ""
	cfg.Postgres.Enabled = false
	cfg.Postgres.Host = ""
	require.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	assert.ErrorContains(t, cfg.Validate(), "redis: addr")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "secret", cfg.Postgres.Password)

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
