package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesFields(t *testing.T) {
	path := writeTemp(t, `
host = "relay.example.org"
port = 6000
storage_dir = "/var/lib/duskline"

[timeouts]
request_ms = 5000
heartbeat_interval_ms = 10000
heartbeat_timeout_ms = 12000
reconnect_interval_ms = 3000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "relay.example.org", cfg.Host)
	require.Equal(t, 6000, cfg.Port)
	require.Equal(t, "relay.example.org:6000", cfg.Addr())
	require.Equal(t, 5*time.Second, cfg.Timeouts.Request())
	require.Equal(t, 10*time.Second, cfg.Timeouts.HeartbeatInterval())
	require.Equal(t, 12*time.Second, cfg.Timeouts.HeartbeatTimeout())
	require.Equal(t, 3*time.Second, cfg.Timeouts.ReconnectInterval())
}

func TestLoadRejectsMissingHost(t *testing.T) {
	path := writeTemp(t, `port = 6000`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnparseable(t *testing.T) {
	path := writeTemp(t, `not valid toml :::`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultsMatchNumerics(t *testing.T) {
	d := Defaults()
	require.Equal(t, 5557, d.Port)
	require.Equal(t, 15*time.Second, d.Timeouts.Request())
	require.Equal(t, 20*time.Second, d.Timeouts.HeartbeatInterval())
}
