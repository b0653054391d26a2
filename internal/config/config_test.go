package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
probe:
  interface: eth1
store:
  type: badger
  badger:
    path: /var/lib/netsankey
api:
  cache_ttl: 0s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "eth1", cfg.Probe.Interface)
	assert.Equal(t, "badger", cfg.Store.Type)
	assert.Equal(t, "/var/lib/netsankey", cfg.Store.Badger.Path)
	assert.Equal(t, time.Duration(0), Duration(cfg.API.CacheTTL))
	// Untouched values keep their defaults.
	assert.Equal(t, int32(1600), cfg.Probe.SnapshotLen)
	assert.Equal(t, ":5001", cfg.API.HttpListenAddr)
	assert.Equal(t, 10*time.Second, Duration(cfg.API.QueryTimeout))
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("NETSANKEY_STORE_TYPE", "memory")
	t.Setenv("NETSANKEY_CLICKHOUSE_PORT", "19000")
	t.Setenv("CAPTURE_INTERFACE", "wlan0")

	cfg, err := LoadConfig(writeConfig(t, "probe:\n  interface: eth0\n"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 19000, cfg.Store.ClickHouse.Port)
	assert.Equal(t, "wlan0", cfg.Probe.Interface)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "ingest:\n  flush_interval: soon\n"))
	assert.ErrorContains(t, err, "ingest.flush_interval")

	_, err = LoadConfig(writeConfig(t, "ingest:\n  queue_size: 0\n"))
	assert.ErrorContains(t, err, "queue_size")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
