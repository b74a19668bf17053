package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goremote/internal/bus"
	"github.com/nextlevelbuilder/goremote/internal/config"
	"github.com/nextlevelbuilder/goremote/internal/federation"
	"github.com/nextlevelbuilder/goremote/internal/gateway"
	httpapi "github.com/nextlevelbuilder/goremote/internal/http"
	"github.com/nextlevelbuilder/goremote/internal/indexer"
	"github.com/nextlevelbuilder/goremote/internal/needsinput"
	"github.com/nextlevelbuilder/goremote/internal/notify"
	"github.com/nextlevelbuilder/goremote/internal/procdetect"
	"github.com/nextlevelbuilder/goremote/internal/store"
	"github.com/nextlevelbuilder/goremote/internal/tmuxctl"
	"github.com/nextlevelbuilder/goremote/internal/tracing"
	"github.com/nextlevelbuilder/goremote/internal/watcher"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

var (
	serveHost        string
	servePort        int
	serveHTTPS       bool
	serveCoordinator bool
	serveLogRoot     string
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GoRemote server (default when no command is given)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
	addServeFlags(cmd)
	return cmd
}

// addServeFlags registers the server flags. The bare root command runs the
// server too, so it carries the same flag set.
func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serveHost, "host", "", "bind address (overrides config)")
	cmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	cmd.Flags().BoolVar(&serveHTTPS, "https", false, "serve TLS using the configured or discovered certificate")
	cmd.Flags().BoolVar(&serveCoordinator, "coordinator", false, "follow peer event streams for a merged live dashboard")
	cmd.Flags().StringVar(&serveLogRoot, "log-root", "", "Claude Code projects directory (overrides config)")
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	mgr, err := config.NewManager(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := mgr.Current()
	applyServeFlags(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		slog.Error("failed to open index database", "path", cfg.DatabasePath(), "error", err)
		os.Exit(1)
	}
	defer st.Close()

	msgBus := bus.New()
	hostname := cfg.Hostname()

	// Background indexing: incremental rescans plus an optional cron-driven
	// maintenance pass (vacuum + forced full reindex).
	ix := indexer.New(st, cfg.LogRoot())
	interval := 60 * time.Second
	if cfg.Index.IntervalSec > 0 {
		interval = time.Duration(cfg.Index.IntervalSec) * time.Second
	}
	go ix.Run(ctx, interval)
	if sched := cfg.Index.MaintenanceSchedule; sched != "" {
		go ix.RunMaintenance(ctx, sched)
	}

	// Live tail of transcript files feeds the event bus.
	go watcher.New(cfg.LogRoot(), msgBus).Run(ctx)

	proc := procdetect.New(cfg.LogRoot(), cfg.Detector.ExcludeMarkers)
	needs := needsinput.New(st, proc, msgBus, notify.FromConfig(cfg.Notify),
		secondsOr(cfg.Detector.PollIntervalSec, 15),
		secondsOr(cfg.Detector.StallSec, 30),
		secondsOr(cfg.Detector.CooldownSec, 300))
	go needs.Run(ctx)

	term := tmuxctl.New(cfg.Terminal.TmuxBin, cfg.Terminal.ClaudeBin)
	terminalH := httpapi.NewTerminalHandler(term)

	handlers := []gateway.RouteRegistrar{
		httpapi.NewDashboardHandler(st, proc, term, hostname, Version),
		httpapi.NewSessionsHandler(st, proc, term),
		httpapi.NewAnalyticsHandler(st),
		httpapi.NewControlHandler(st, term, cfg.Terminal),
		terminalH,
		httpapi.NewAdminHandler(st, ix, needs),
		httpapi.NewStreamHandler(msgBus, cfg.Server.MaxStreams),
	}

	peers, err := federation.LoadPeers(cfg.MachinesPath())
	if err != nil {
		slog.Warn("failed to load machine registry", "path", cfg.MachinesPath(), "error", err)
	}

	// The multi-machine handler dispatches host-local requests against its
	// own mux so merged endpoints never loop through the network. With no
	// peers configured the /api/multi surface degrades to local-only.
	localMux := http.NewServeMux()
	for _, h := range handlers {
		h.RegisterRoutes(localMux)
	}
	handlers = append(handlers, federation.NewMultiHandler(hostname, Version, peers, localMux, terminalH))

	if cfg.Federation.Coordinator && len(peers) > 0 {
		go federation.NewFollower(peers, msgBus).Run(ctx)
	}

	mgr.OnReload(func(c *config.Config) {
		slog.Info("config reloaded; server and detector settings apply on restart", "path", mgr.Path())
	})
	go func() {
		if err := mgr.Watch(ctx); err != nil {
			slog.Warn("config watch stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		msgBus.Publish(protocol.TopicGlobal, bus.Event{
			Type:      protocol.EventShutdown,
			Hostname:  hostname,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
		cancel()
	}()

	server := gateway.NewServer(cfg, handlers...)

	// Tailscale listener serves the same routes on the tailnet.
	// Compiled via build tags: `go build -tags tsnet` to enable.
	tsCleanup := initTailscale(ctx, cfg, server.Handler())
	if tsCleanup != nil {
		defer tsCleanup()
	}

	slog.Info("goremote starting",
		"version", Version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"hostname", hostname,
		"log_root", cfg.LogRoot(),
		"peers", len(peers),
		"coordinator", cfg.Federation.Coordinator,
	)

	if err := server.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func applyServeFlags(cfg *config.Config) {
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveHTTPS {
		cfg.Server.HTTPS = true
	}
	if serveCoordinator {
		cfg.Federation.Coordinator = true
	}
	if serveLogRoot != "" {
		cfg.Index.LogRoot = serveLogRoot
	}
}

func secondsOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
