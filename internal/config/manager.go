package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the live config and reloads it when the file changes on
// disk. Components that honor runtime changes call Current each cycle
// instead of caching the pointer.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	reloadMu sync.Mutex
	onReload []func(*Config)
}

// NewManager loads the config at path and wraps it for hot reload.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, cfg: cfg}, nil
}

// Current returns the most recently loaded config.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Path returns the watched config file location.
func (m *Manager) Path() string { return m.path }

// OnReload registers fn to run after each successful reload.
func (m *Manager) OnReload(fn func(*Config)) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	m.onReload = append(m.onReload, fn)
}

// Reload re-reads the config file and swaps it in.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.reloadMu.Lock()
	fns := append([]func(*Config){}, m.onReload...)
	m.reloadMu.Unlock()
	for _, fn := range fns {
		fn(cfg)
	}
	return nil
}

// Watch reloads the config whenever the file changes, until ctx is done.
// Editors replace files on save, so the parent directory is watched and
// bursts of events are debounced.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != filepath.Base(m.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(500 * time.Millisecond)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watch error", "error", err)
		case <-pending:
			pending = nil
			if err := m.Reload(); err != nil {
				slog.Warn("config reload failed", "path", m.path, "error", err)
				continue
			}
			slog.Info("config reloaded", "path", m.path, "hash", m.Current().Hash())
		}
	}
}
