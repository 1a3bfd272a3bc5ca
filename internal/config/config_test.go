package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(10_000_000_000), cfg.MaxTransactionAmount)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, "standard", cfg.DefaultIncrementRule)
	assert.Equal(t, "0.1", cfg.PurchaseFeeCapRate.String())
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL_TEST", "sqlite:file::memory:")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("REDIS_RELAY", "TRUE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "sqlite:file::memory:", cfg.DatabaseURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.True(t, cfg.RedisRelay)
}
