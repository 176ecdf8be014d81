package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err, "missing config file falls back to defaults")

	assert.Equal(t, DefaultRedisAddr, cfg.RedisAddr)
	assert.Equal(t, "", cfg.KafkaBrokers)
	assert.Equal(t, DefaultKafkaTopic, cfg.KafkaTopic)
	assert.Equal(t, DefaultBatch.Size, cfg.Batch.Size)
	assert.Equal(t, DefaultBatch.Concurrency, cfg.Batch.Concurrency)
	assert.Equal(t, DefaultBatch.WindowDays, cfg.Batch.WindowDays)
	assert.True(t, cfg.Output.Color)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `redis_addr: redis.internal:6380
kafka_brokers: broker-1:9092,broker-2:9092
batch:
  size: 50
  concurrency: 4
output:
  color: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, "broker-1:9092,broker-2:9092", cfg.KafkaBrokers)
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, DefaultBatch.WindowDays, cfg.Batch.WindowDays, "unset keys keep defaults")
	assert.False(t, cfg.Output.Color)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLINICPULSE_REDIS_ADDR", "env-redis:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-redis:6379", cfg.RedisAddr)
}

func TestBatchDelay(t *testing.T) {
	b := Batch{DelayMs: 500}
	assert.Equal(t, "500ms", b.Delay().String())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x"), expandPath("~/x"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
}

func TestDBPath(t *testing.T) {
	p := DBPath()
	assert.Equal(t, DefaultDBName, filepath.Base(p))
	assert.Equal(t, ConfigDir(), filepath.Dir(p))
}
