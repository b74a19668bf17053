//go:build tsnet

package cmd

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/goremote/internal/config"
)

// initTailscale serves the gateway routes on a tailnet node. Returns a
// cleanup func, or nil when Tailscale is not configured. The auth key comes
// from GOREMOTE_TSNET_AUTH_KEY; nothing secret touches the config file.
func initTailscale(ctx context.Context, cfg *config.Config, handler http.Handler) func() {
	ts := cfg.Tailscale
	if ts.Hostname == "" {
		return nil
	}

	stateDir := config.ExpandHome(ts.StateDir)
	if stateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			slog.Warn("tailscale disabled: no state dir", "error", err)
			return nil
		}
		stateDir = filepath.Join(base, "tsnet-goremote")
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		slog.Warn("tailscale disabled: state dir", "error", err)
		return nil
	}

	srv := &tsnet.Server{
		Hostname:  ts.Hostname,
		Dir:       stateDir,
		AuthKey:   ts.AuthKey,
		Ephemeral: ts.Ephemeral,
	}

	var (
		ln  net.Listener
		err error
	)
	if ts.EnableTLS {
		ln, err = srv.ListenTLS("tcp", ":443")
	} else {
		ln, err = srv.Listen("tcp", ":80")
	}
	if err != nil {
		slog.Warn("tailscale listen failed", "hostname", ts.Hostname, "error", err)
		srv.Close()
		return nil
	}
	go http.Serve(ln, handler)

	slog.Info("tailscale listener up", "hostname", ts.Hostname, "tls", ts.EnableTLS)
	return func() {
		ln.Close()
		srv.Close()
	}
}
