package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8480, cfg.Server.Port)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "file", cfg.Storage.Raw.Backend)
	assert.True(t, cfg.Liability.Enabled)
	assert.Equal(t, 120, cfg.Liability.WindowDays)
	assert.Equal(t, 4*time.Hour, cfg.Scheduler.GetSyncInterval())
	assert.Equal(t, 30*time.Second, cfg.Providers.SimpleFin.GetTimeout())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment = "production"

[server]
port = 9000

[storage]
backend = "memory"

[liability]
window_days = 60

[scheduler]
sync_interval = "1h"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 60, cfg.Liability.WindowDays)
	assert.Equal(t, time.Hour, cfg.Scheduler.GetSyncInterval())

	// Unset keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10, cfg.Liability.MinTxns)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("LEDGERD_SERVER_PORT", "9123")
	t.Setenv("LEDGERD_STORAGE_BACKEND", "memory")
	t.Setenv("LEDGERD_LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9123, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestGetTimeoutFallback(t *testing.T) {
	c := SimpleFinConfig{Timeout: "garbage"}
	assert.Equal(t, 30*time.Second, c.GetTimeout())
}
