package watcher

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/bus"
	"github.com/nextlevelbuilder/goremote/internal/parser"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

const (
	defaultInterval = 2 * time.Second
	defaultHold     = 500 * time.Millisecond
	previewChars    = 120
	maxLineBytes    = 1 << 20
)

// Watcher tails every transcript under the log root by polling file sizes
// and emits new_message events for appended records. Polling is deliberate:
// inode notifications are unreliable on FUSE-backed mounts, stat is not.
type Watcher struct {
	logRoot string
	bus     *bus.Bus

	// Interval is the stat-poll period; Hold is how long a batch of pending
	// events sits before delivery. Both are settable before Run for tests.
	Interval time.Duration
	Hold     time.Duration

	offsets map[string]int64
}

func New(logRoot string, b *bus.Bus) *Watcher {
	return &Watcher{
		logRoot:  logRoot,
		bus:      b,
		Interval: defaultInterval,
		Hold:     defaultHold,
		offsets:  make(map[string]int64),
	}
}

// Run polls until the context ends. Existing file content present at startup
// is never replayed.
func (w *Watcher) Run(ctx context.Context) {
	w.seed()
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events := w.poll()
			if len(events) == 0 {
				continue
			}
			// Let a burst of writes settle before fanning out.
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.Hold):
			}
			for _, ev := range events {
				w.bus.Publish(ev.SessionID, ev)
			}
		}
	}
}

// seed records the current size of every transcript as its starting offset.
func (w *Watcher) seed() {
	for _, path := range w.findTranscripts() {
		if info, err := os.Stat(path); err == nil {
			w.offsets[path] = info.Size()
		}
	}
}

// poll reads appended bytes from every grown transcript and returns the
// events they produced, in file order per transcript.
func (w *Watcher) poll() []bus.Event {
	var events []bus.Event
	for _, path := range w.findTranscripts() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		size := info.Size()
		offset := w.offsets[path]
		if size < offset {
			// Truncated or rewritten; start over from the top.
			offset = 0
		}
		if size == offset {
			continue
		}
		events = append(events, w.readFrom(path, offset, size)...)
		w.offsets[path] = size
	}
	return events
}

func (w *Watcher) readFrom(path string, offset, size int64) []bus.Event {
	f, err := os.Open(path)
	if err != nil {
		slog.Debug("open transcript failed", "path", path, "error", err)
		return nil
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil
	}

	sessionID := sessionIDFromPath(path)
	var events []bus.Event
	scanner := bufio.NewScanner(io.LimitReader(f, size-offset))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		rec, ok := parser.ParseLine(scanner.Bytes())
		if !ok || !rec.IsMessage() {
			continue
		}
		events = append(events, bus.Event{
			Type:      protocol.EventNewMessage,
			SessionID: sessionID,
			Role:      rec.Role(),
			Preview:   preview(rec.TextContent()),
			ToolUses:  rec.ToolUseNames(),
			Timestamp: rec.Timestamp,
		})
	}
	return events
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewChars {
		return string(runes[:previewChars])
	}
	return text
}

func (w *Watcher) findTranscripts() []string {
	entries, err := os.ReadDir(w.logRoot)
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(w.logRoot, entry.Name(), "*.jsonl"))
		if err != nil {
			continue
		}
		out = append(out, matches...)
	}
	return out
}

func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
