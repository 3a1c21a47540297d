package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "local", env.Env)
	assert.Equal(t, "3100", env.HTTPPort)
	assert.Equal(t, "yaml", env.StoreEnv.Type)
	assert.Equal(t, "local", env.StorageEnv.Type)
	assert.Equal(t, ".riggerhire/data", env.BaseDir)
	assert.Equal(t, "ap-southeast-2", env.S3Region)
	assert.InDelta(t, 0.95, env.SuccessRate, 1e-9)
	assert.Equal(t, time.Second, env.Latency)
	assert.Equal(t, 500*time.Millisecond, env.EscrowLatency)
	assert.Equal(t, 5*time.Minute, env.StaleAfter)
	assert.Equal(t, 10*time.Minute, env.MaxBackoff)
	assert.Empty(t, env.LogDir)
	assert.ErrorIs(t, env.RequireAPIKey(), ErrMissingAPIKey)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("RIGGERHIRE_STORE_TYPE", "sqlite")
	t.Setenv("RIGGERHIRE_API_KEY", "secret")
	t.Setenv("RIGGERHIRE_PAYMENT_LATENCY", "0s")
	t.Setenv("RIGGERHIRE_ACTORSYNC_POLL_INTERVAL", "250ms")
	t.Setenv("RIGGERHIRE_EVENT_LOG_DIR", "/var/log/riggerhire")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", env.StoreEnv.Type)
	assert.NoError(t, env.RequireAPIKey())
	assert.Zero(t, env.Latency)
	assert.Equal(t, 250*time.Millisecond, env.PollInterval)
	assert.Equal(t, "/var/log/riggerhire", env.LogDir)
}

func TestLoadEnv_Invalid(t *testing.T) {
	for name, vars := range map[string]map[string]string{
		"store type":   {"RIGGERHIRE_STORE_TYPE": "postgres"},
		"storage type": {"RIGGERHIRE_STORAGE_TYPE": "gcs"},
		"s3 bucket":    {"RIGGERHIRE_STORAGE_TYPE": "s3"},
		"success rate": {"RIGGERHIRE_PAYMENT_SUCCESS_RATE": "1.5"},
		"duration":     {"RIGGERHIRE_PAYMENT_LATENCY": "soon"},
	} {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := LoadEnv()
			assert.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, (&BaseEnv{LogLevel: "warn"}).SlogLevel())
	assert.Equal(t, slog.LevelDebug, (&BaseEnv{LogLevel: "loud"}).SlogLevel())
	assert.Equal(t, slog.LevelDebug, (*BaseEnv)(nil).SlogLevel())
}
