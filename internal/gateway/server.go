package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/config"
)

// RouteRegistrar is implemented by every handler bundle that contributes
// routes to the API mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server owns the HTTP listener and assembles the API surface from handler
// bundles.
type Server struct {
	cfg      *config.Config
	handlers []RouteRegistrar

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a gateway server serving the given handler bundles.
func NewServer(cfg *config.Config, handlers ...RouteRegistrar) *Server {
	return &Server{cfg: cfg, handlers: handlers}
}

// BuildMux creates and caches the HTTP mux with all routes registered.
// Call this before Start() if you need the mux for additional listeners
// (e.g. Tailscale).
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	for _, h := range s.handlers {
		h.RegisterRoutes(mux)
	}
	s.mux = mux
	return mux
}

// Handler returns the mux wrapped in the tracing middleware when telemetry
// is enabled.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.BuildMux()
	if s.cfg.Telemetry.Enabled {
		h = traceMiddleware(h)
	}
	return h
}

// Start begins serving until ctx is cancelled. TLS is used when configured
// and a certificate can be found; otherwise it falls back to plain HTTP.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	certFile, keyFile := s.findCert()
	if s.cfg.Server.HTTPS && certFile != "" {
		slog.Info("gateway starting", "addr", addr, "https", true)
		if err := s.httpServer.ListenAndServeTLS(certFile, keyFile); err != http.ErrServerClosed {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	}
	if s.cfg.Server.HTTPS {
		slog.Warn("https requested but no certificate found, serving plain http")
	}

	slog.Info("gateway starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// findCert resolves the TLS certificate pair: explicit config first, then a
// <hostname>*.crt file under the state directory with its sibling .key.
func (s *Server) findCert() (string, string) {
	if s.cfg.Server.CertFile != "" && s.cfg.Server.KeyFile != "" {
		return config.ExpandHome(s.cfg.Server.CertFile), config.ExpandHome(s.cfg.Server.KeyFile)
	}

	hostname := s.cfg.Hostname()
	matches, err := filepath.Glob(filepath.Join(config.Dir(), hostname+"*.crt"))
	if err != nil || len(matches) == 0 {
		return "", ""
	}
	cert := matches[0]
	key := strings.TrimSuffix(cert, ".crt") + ".key"
	if _, err := os.Stat(key); err != nil {
		return "", ""
	}
	return cert, key
}

// StartTestServer listens on a random loopback port and returns the actual
// address and a start function. Used for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: s.Handler()}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}
	return addr, start
}
