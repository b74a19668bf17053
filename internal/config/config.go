package config

import (
	"os"
	"path/filepath"
	"sync"
)

// Config is the root configuration for the GoRemote server.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Index      IndexConfig      `json:"index"`
	Detector   DetectorConfig   `json:"detector"`
	Terminal   TerminalConfig   `json:"terminal"`
	Notify     NotifyConfig     `json:"notify,omitempty"`
	Federation FederationConfig `json:"federation,omitempty"`
	Telemetry  TelemetryConfig  `json:"telemetry,omitempty"`
	Tailscale  TailscaleConfig  `json:"tailscale,omitempty"`
	mu         sync.RWMutex
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host       string `json:"host"`                 // bind address (default "0.0.0.0")
	Port       int    `json:"port"`                 // listen port (default 7860)
	Hostname   string `json:"hostname,omitempty"`   // identity in events and /api/machines (default os.Hostname)
	HTTPS      bool   `json:"https,omitempty"`      // serve TLS (requires cert_file/key_file)
	CertFile   string `json:"cert_file,omitempty"`  // TLS certificate path
	KeyFile    string `json:"key_file,omitempty"`   // TLS key path
	MaxStreams int    `json:"max_streams,omitempty"` // concurrent SSE cap (default 5)
}

// IndexConfig configures the transcript index.
type IndexConfig struct {
	LogRoot             string `json:"log_root"`                       // Claude Code projects dir (default "~/.claude/projects")
	DatabasePath        string `json:"database_path"`                  // SQLite file (default "~/.claude-remote/index.db")
	IntervalSec         int    `json:"interval_sec,omitempty"`         // background reindex cadence (default 60)
	MaintenanceSchedule string `json:"maintenance_schedule,omitempty"` // cron expr for vacuum + full rescan ("" = off)
}

// DetectorConfig configures live-process discovery and the needs-input heuristic.
type DetectorConfig struct {
	ExcludeMarkers  []string `json:"exclude_markers,omitempty"`  // cmdline substrings that disqualify a process
	PollIntervalSec int      `json:"poll_interval_sec,omitempty"` // needs-input loop cadence (default 15)
	StallSec        int      `json:"stall_sec,omitempty"`         // assistant-tail age before waiting (default 30)
	CooldownSec     int      `json:"cooldown_sec,omitempty"`      // per-session notification gap (default 300)
}

// TerminalConfig configures multiplexer session control.
type TerminalConfig struct {
	ClaudeBin   string `json:"claude_bin,omitempty"`   // assistant binary (default "claude")
	TmuxBin     string `json:"tmux_bin,omitempty"`     // multiplexer binary (default "tmux")
	DefaultRows int    `json:"default_rows,omitempty"` // spawn rows when the request omits them (default 24)
	DefaultCols int    `json:"default_cols,omitempty"` // spawn cols when the request omits them (default 80)
}

// NotifyConfig configures outbound needs-input notification senders.
// All tokens come from env only and are never persisted.
type NotifyConfig struct {
	RatePerHour int            `json:"rate_per_hour,omitempty"` // global cap across all senders (default 10)
	Telegram    TelegramNotify `json:"telegram,omitempty"`
	Discord     DiscordNotify  `json:"discord,omitempty"`
	Webhook     WebhookNotify  `json:"webhook,omitempty"`
}

// TelegramNotify sends needs-input alerts to a Telegram chat.
type TelegramNotify struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"-"` // from env GOREMOTE_TELEGRAM_TOKEN only
	ChatID  int64  `json:"chat_id,omitempty"`
}

// DiscordNotify sends needs-input alerts to a Discord channel.
type DiscordNotify struct {
	Enabled   bool   `json:"enabled,omitempty"`
	Token     string `json:"-"` // from env GOREMOTE_DISCORD_TOKEN only
	ChannelID string `json:"channel_id,omitempty"`
}

// WebhookNotify POSTs alert JSON to an arbitrary URL (push gateways hook in here).
type WebhookNotify struct {
	URL string `json:"url,omitempty"`
}

// FederationConfig configures the multi-machine surface.
type FederationConfig struct {
	MachinesPath string `json:"machines_path,omitempty"` // peer registry (default "~/.claude-remote/machines.json")
	Coordinator  bool   `json:"coordinator,omitempty"`   // follow peer event streams
}

// TelemetryConfig configures OpenTelemetry trace export.
// When enabled, spans are exported to an OTLP-compatible backend.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS (local dev)
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "goremote")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (auth tokens)
}

// TailscaleConfig configures the optional tsnet listener.
// Requires building with -tags tsnet. Auth key from env only (never persisted).
type TailscaleConfig struct {
	Hostname  string `json:"hostname,omitempty"`   // tailnet machine name (default "goremote")
	StateDir  string `json:"state_dir,omitempty"`  // persistent state dir (default: os.UserConfigDir/tsnet-goremote)
	AuthKey   string `json:"-"`                    // from env GOREMOTE_TSNET_AUTH_KEY only
	Ephemeral bool   `json:"ephemeral,omitempty"`  // remove node on exit
	EnableTLS bool   `json:"enable_tls,omitempty"` // ListenTLS for tailnet HTTPS certs
}

// Dir returns the GoRemote state directory (~/.claude-remote).
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude-remote")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = src.Server
	c.Index = src.Index
	c.Detector = src.Detector
	c.Terminal = src.Terminal
	c.Notify = src.Notify
	c.Federation = src.Federation
	c.Telemetry = src.Telemetry
	c.Tailscale = src.Tailscale
}
