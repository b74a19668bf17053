package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       7860,
			MaxStreams: 5,
		},
		Index: IndexConfig{
			LogRoot:      "~/.claude/projects",
			DatabasePath: "~/.claude-remote/index.db",
			IntervalSec:  60,
		},
		Detector: DetectorConfig{
			ExcludeMarkers:  []string{"--chrome-native-host", "server.py"},
			PollIntervalSec: 15,
			StallSec:        30,
			CooldownSec:     300,
		},
		Terminal: TerminalConfig{
			ClaudeBin:   "claude",
			TmuxBin:     "tmux",
			DefaultRows: 24,
			DefaultCols: 80,
		},
		Notify: NotifyConfig{
			RatePerHour: 10,
		},
		Federation: FederationConfig{
			MachinesPath: "~/.claude-remote/machines.json",
		},
	}
}

// Load reads config from a JSON file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GOREMOTE_HOST", &c.Server.Host)
	if v := os.Getenv("GOREMOTE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	envStr("GOREMOTE_HOSTNAME", &c.Server.Hostname)

	envStr("GOREMOTE_LOG_ROOT", &c.Index.LogRoot)
	envStr("GOREMOTE_DB_PATH", &c.Index.DatabasePath)

	envStr("GOREMOTE_CLAUDE_BIN", &c.Terminal.ClaudeBin)
	envStr("GOREMOTE_TMUX_BIN", &c.Terminal.TmuxBin)

	envStr("GOREMOTE_MACHINES", &c.Federation.MachinesPath)

	// Notification secrets; a token arriving via env enables its sender.
	envStr("GOREMOTE_TELEGRAM_TOKEN", &c.Notify.Telegram.Token)
	if v := os.Getenv("GOREMOTE_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notify.Telegram.ChatID = id
		}
	}
	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID != 0 {
		c.Notify.Telegram.Enabled = true
	}
	envStr("GOREMOTE_DISCORD_TOKEN", &c.Notify.Discord.Token)
	envStr("GOREMOTE_DISCORD_CHANNEL_ID", &c.Notify.Discord.ChannelID)
	if c.Notify.Discord.Token != "" && c.Notify.Discord.ChannelID != "" {
		c.Notify.Discord.Enabled = true
	}
	envStr("GOREMOTE_WEBHOOK_URL", &c.Notify.Webhook.URL)

	// Telemetry
	envStr("GOREMOTE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GOREMOTE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GOREMOTE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("GOREMOTE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GOREMOTE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	// Tailscale (tsnet)
	envStr("GOREMOTE_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("GOREMOTE_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)
	envStr("GOREMOTE_TSNET_DIR", &c.Tailscale.StateDir)

	// Detector markers, comma-separated
	if v := os.Getenv("GOREMOTE_EXCLUDE_MARKERS"); v != "" {
		c.Detector.ExcludeMarkers = strings.Split(v, ",")
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config for change detection.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// LogRoot returns the expanded transcript root.
func (c *Config) LogRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Index.LogRoot)
}

// DatabasePath returns the expanded SQLite path.
func (c *Config) DatabasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Index.DatabasePath)
}

// MachinesPath returns the expanded peer registry path.
func (c *Config) MachinesPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Federation.MachinesPath)
}

// Hostname returns the configured identity, falling back to os.Hostname.
func (c *Config) Hostname() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Server.Hostname != "" {
		return c.Server.Hostname
	}
	name, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return name
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Notify.Telegram.Token)
	maskNonEmpty(&cp.Notify.Discord.Token)
	maskNonEmpty(&cp.Tailscale.AuthKey)

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
