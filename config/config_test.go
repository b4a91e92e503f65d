package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tompro/payday/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5, cfg.EventStore.SnapshotFrequency)
	assert.Equal(t, 10, cfg.Outbox.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Outbox.Interval)
	assert.Equal(t, 3, cfg.Outbox.Workers)
	assert.Equal(t, time.Minute, cfg.Expiry.SweepInterval)
}

func TestValidateRequiresConnectionSettings(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	cfg.Postgres.DSN = "postgres://localhost/payday"
	require.Error(t, cfg.Validate())

	cfg.HTTP.PSK = "secret"
	require.NoError(t, cfg.Validate())

	// The broker is optional; projections fall back to tailing the log.
	cfg.NATS.URL = ""
	require.NoError(t, cfg.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PAYDAY_POSTGRES_DSN", "postgres://env-host/payday")
	t.Setenv("PAYDAY_HTTP_ADDR", ":9090")
	t.Setenv("PAYDAY_HTTP_PSK", "env-secret")
	t.Setenv("PAYDAY_NATS_URL", "nats://env-host:4222")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/payday", cfg.Postgres.DSN)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "env-secret", cfg.HTTP.PSK)
	assert.Equal(t, "nats://env-host:4222", cfg.NATS.URL)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payday.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":7070"
  psk: "file-secret"
postgres:
  dsn: "postgres://file-host/payday"
nats:
  url: "nats://file-host:4222"
outbox:
  batch_size: 25
`), 0o600))

	t.Setenv("PAYDAY_HTTP_PSK", "env-wins")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "postgres://file-host/payday", cfg.Postgres.DSN)
	assert.Equal(t, 25, cfg.Outbox.BatchSize)
	assert.Equal(t, "env-wins", cfg.HTTP.PSK, "environment takes precedence over the file")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := config.Load("/does/not/exist.yaml")
	require.Error(t, err)
}
