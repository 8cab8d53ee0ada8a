package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roost.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ROOST_HOME_DIR", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:18789", cfg.GatewayURL)
	require.Equal(t, "roost", cfg.ClientID)
	require.Equal(t, DefaultInvokeTimeout, cfg.InvokeTimeout)
	require.Equal(t, DefaultKeepalivePeriod, cfg.KeepalivePeriod)
	require.Equal(t, DefaultTickTimeout, cfg.TickTimeout)
	require.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay)
	require.Equal(t, filepath.Join(cfg.RoostHome, "identity.json"), cfg.IdentityPath)
}

func TestLoad_FileOverrides(t *testing.T) {
	t.Setenv("ROOST_HOME_DIR", t.TempDir())
	path := writeConfig(t, `
debug = true

[gateway]
url = "wss://gw.example:8443"
token = "tok-123"

[client]
id = "backend-7"
role = "admin"
scopes = ["admin.read"]

[timeouts]
invoke_ms = 2500
reconnect_ms = 500

[metrics]
listen_addr = "127.0.0.1:9310"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "wss://gw.example:8443", cfg.GatewayURL)
	require.Equal(t, "tok-123", cfg.Token)
	require.Equal(t, "backend-7", cfg.ClientID)
	require.Equal(t, "admin", cfg.Role)
	require.Equal(t, []string{"admin.read"}, cfg.Scopes)
	require.Equal(t, 2500*time.Millisecond, cfg.InvokeTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.ReconnectDelay)
	require.Equal(t, "127.0.0.1:9310", cfg.MetricsAddr)
	require.True(t, cfg.Debug)
	// Keys absent from the file keep their defaults.
	require.Equal(t, DefaultKeepalivePeriod, cfg.KeepalivePeriod)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("ROOST_HOME_DIR", t.TempDir())
	t.Setenv("ROOST_GATEWAY_URL", "ws://10.0.0.5:18789")
	t.Setenv("ROOST_TOKEN", "env-token")
	path := writeConfig(t, `
[gateway]
url = "ws://file-host:1"
token = "file-token"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ws://10.0.0.5:18789", cfg.GatewayURL)
	require.Equal(t, "env-token", cfg.Token)
}

func TestLoad_RejectsNonWebSocketURL(t *testing.T) {
	t.Setenv("ROOST_HOME_DIR", t.TempDir())
	t.Setenv("ROOST_GATEWAY_URL", "https://gw.example")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_MissingFileFails(t *testing.T) {
	t.Setenv("ROOST_HOME_DIR", t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
