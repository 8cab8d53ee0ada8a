// Package config loads roost runtime configuration from an optional TOML
// file layered under environment overrides and code defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for the session timing knobs. These match the gateway's reference
// behavior and rarely need changing outside tests.
const (
	DefaultInvokeTimeout   = 10 * time.Second
	DefaultKeepalivePeriod = 30 * time.Second
	DefaultTickTimeout     = 65 * time.Second
	DefaultReconnectDelay  = 3 * time.Second
)

// Config is the resolved roost configuration.
type Config struct {
	// GatewayURL is the WebSocket URL of the gateway (ws:// or wss://).
	GatewayURL string
	// Token is an optional bearer token presented during the handshake and
	// attached to the dial request.
	Token string
	// Password is an optional shared password presented during the handshake.
	Password string

	// ClientID is the stable client identifier sent in connect params.
	ClientID string
	// ClientDisplayName is a human-readable client label.
	ClientDisplayName string
	// ClientMode is the client mode advertised to the gateway.
	ClientMode string
	// Role is the requested session role.
	Role string
	// Scopes are the requested session scopes.
	Scopes []string
	// Caps are the capabilities advertised to the gateway.
	Caps []string

	// RoostHome is the directory where roost stores local state.
	RoostHome string
	// IdentityPath is the device identity file location.
	IdentityPath string

	// InvokeTimeout is the default per-request deadline.
	InvokeTimeout time.Duration
	// KeepalivePeriod is how often liveness is checked while connected.
	KeepalivePeriod time.Duration
	// TickTimeout is the liveness silence threshold before a forced close.
	TickTimeout time.Duration
	// ReconnectDelay is the fixed delay between reconnection attempts.
	ReconnectDelay time.Duration

	// MetricsAddr exposes Prometheus metrics over HTTP when non-empty.
	MetricsAddr string

	// Debug enables verbose logging.
	Debug bool
}

// fileConfig is the TOML schema. Only keys present in the file override the
// defaults/environment.
type fileConfig struct {
	Gateway struct {
		URL      string `toml:"url"`
		Token    string `toml:"token"`
		Password string `toml:"password"`
	} `toml:"gateway"`
	Client struct {
		ID          string   `toml:"id"`
		DisplayName string   `toml:"display_name"`
		Mode        string   `toml:"mode"`
		Role        string   `toml:"role"`
		Scopes      []string `toml:"scopes"`
		Caps        []string `toml:"caps"`
	} `toml:"client"`
	Timeouts struct {
		InvokeMs    int64 `toml:"invoke_ms"`
		KeepaliveMs int64 `toml:"keepalive_ms"`
		TickMs      int64 `toml:"tick_timeout_ms"`
		ReconnectMs int64 `toml:"reconnect_ms"`
	} `toml:"timeouts"`
	Metrics struct {
		ListenAddr string `toml:"listen_addr"`
	} `toml:"metrics"`
	Debug bool `toml:"debug"`
}

// Load resolves configuration from defaults, then the TOML file at path (when
// path is non-empty), then ROOST_* environment variables.
func Load(path string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	roostHome := os.Getenv("ROOST_HOME_DIR")
	if roostHome == "" {
		roostHome = filepath.Join(homeDir, ".roost")
	}

	cfg := &Config{
		GatewayURL:        "ws://127.0.0.1:18789",
		ClientID:          "roost",
		ClientDisplayName: "Roost",
		ClientMode:        "backend",
		Role:              "operator",
		Scopes:            []string{"operator.read", "operator.write"},
		Caps:              []string{},
		RoostHome:         roostHome,
		IdentityPath:      filepath.Join(roostHome, "identity.json"),
		InvokeTimeout:     DefaultInvokeTimeout,
		KeepalivePeriod:   DefaultKeepalivePeriod,
		TickTimeout:       DefaultTickTimeout,
		ReconnectDelay:    DefaultReconnectDelay,
	}

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	if !strings.HasPrefix(cfg.GatewayURL, "ws://") && !strings.HasPrefix(cfg.GatewayURL, "wss://") {
		return nil, fmt.Errorf("gateway url %q must be ws:// or wss://", cfg.GatewayURL)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if meta.IsDefined("gateway", "url") {
		cfg.GatewayURL = strings.TrimSpace(raw.Gateway.URL)
	}
	if meta.IsDefined("gateway", "token") {
		cfg.Token = raw.Gateway.Token
	}
	if meta.IsDefined("gateway", "password") {
		cfg.Password = raw.Gateway.Password
	}
	if meta.IsDefined("client", "id") {
		cfg.ClientID = strings.TrimSpace(raw.Client.ID)
	}
	if meta.IsDefined("client", "display_name") {
		cfg.ClientDisplayName = raw.Client.DisplayName
	}
	if meta.IsDefined("client", "mode") {
		cfg.ClientMode = strings.TrimSpace(raw.Client.Mode)
	}
	if meta.IsDefined("client", "role") {
		cfg.Role = strings.TrimSpace(raw.Client.Role)
	}
	if meta.IsDefined("client", "scopes") {
		cfg.Scopes = raw.Client.Scopes
	}
	if meta.IsDefined("client", "caps") {
		cfg.Caps = raw.Client.Caps
	}
	if meta.IsDefined("timeouts", "invoke_ms") && raw.Timeouts.InvokeMs > 0 {
		cfg.InvokeTimeout = time.Duration(raw.Timeouts.InvokeMs) * time.Millisecond
	}
	if meta.IsDefined("timeouts", "keepalive_ms") && raw.Timeouts.KeepaliveMs > 0 {
		cfg.KeepalivePeriod = time.Duration(raw.Timeouts.KeepaliveMs) * time.Millisecond
	}
	if meta.IsDefined("timeouts", "tick_timeout_ms") && raw.Timeouts.TickMs > 0 {
		cfg.TickTimeout = time.Duration(raw.Timeouts.TickMs) * time.Millisecond
	}
	if meta.IsDefined("timeouts", "reconnect_ms") && raw.Timeouts.ReconnectMs > 0 {
		cfg.ReconnectDelay = time.Duration(raw.Timeouts.ReconnectMs) * time.Millisecond
	}
	if meta.IsDefined("metrics", "listen_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.Metrics.ListenAddr)
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ROOST_GATEWAY_URL"); v != "" {
		cfg.GatewayURL = v
	}
	if v := os.Getenv("ROOST_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("ROOST_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("ROOST_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("ROOST_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("ROOST_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
	if v, ok := envMs("ROOST_INVOKE_TIMEOUT_MS"); ok {
		cfg.InvokeTimeout = v
	}
	if v, ok := envMs("ROOST_RECONNECT_DELAY_MS"); ok {
		cfg.ReconnectDelay = v
	}
}

func envMs(name string) (time.Duration, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// Platform returns the platform string advertised in connect params.
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
