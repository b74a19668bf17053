package indexer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/goremote/internal/parser"
	"github.com/nextlevelbuilder/goremote/internal/store"
)

// maxLineBytes bounds a single transcript line. Tool results with embedded
// file contents can get large.
const maxLineBytes = 1 << 20

// mtimeTolerance absorbs filesystem timestamp precision differences between
// what was recorded and what stat reports now.
const mtimeTolerance = 0.01

// Indexer scans the transcript root and keeps the session index current.
type Indexer struct {
	store   *store.Store
	logRoot string
}

func New(st *store.Store, logRoot string) *Indexer {
	return &Indexer{store: st, logRoot: logRoot}
}

// Result summarizes one reindex pass.
type Result struct {
	SessionsIndexed int   `json:"sessions_indexed"`
	SessionsSkipped int   `json:"sessions_skipped"`
	MessagesIndexed int   `json:"messages_indexed"`
	OrphansRemoved  int   `json:"orphans_removed"`
	DurationMS      int64 `json:"duration_ms"`
}

// IndexFile parses one transcript and replaces its rows in the index.
// Returns the session ID and the number of messages indexed.
func (ix *Indexer) IndexFile(path string) (string, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("stat transcript: %w", err)
	}

	sessionID := sessionIDFromPath(path)
	projectDir := filepath.Base(filepath.Dir(path))
	acc := parser.NewAccumulator(sessionID, projectDir)

	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open transcript: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if rec, ok := parser.ParseLine(scanner.Bytes()); ok {
			acc.Add(rec)
		}
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return "", 0, fmt.Errorf("read transcript: %w", scanErr)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	sess := acc.Session(path, info.Size(), now)
	if err := ix.store.ReplaceSession(sess, acc.Messages, acc.ToolUses, acc.FileEvents); err != nil {
		return "", 0, err
	}
	if err := ix.store.UpsertIndexMeta(store.IndexMeta{
		JSONLPath: path,
		FileMtime: float64(info.ModTime().UnixNano()) / 1e9,
		FileSize:  info.Size(),
		IndexedAt: now,
	}); err != nil {
		return "", 0, err
	}
	return sessionID, len(acc.Messages), nil
}

// ReindexAll scans every transcript under the log root, indexing new or
// changed files, reaping rows whose files are gone, and resyncing the
// full-text index whenever anything changed.
func (ix *Indexer) ReindexAll(ctx context.Context, force bool) (Result, error) {
	start := time.Now()
	var res Result

	meta, err := ix.store.AllIndexMeta()
	if err != nil {
		return res, err
	}

	files, err := ix.findTranscripts()
	if err != nil {
		return res, err
	}

	seen := make(map[string]bool, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		seen[path] = true

		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("stat transcript failed", "path", path, "error", err)
			continue
		}
		if !force {
			if old, ok := meta[path]; ok {
				mtime := float64(info.ModTime().UnixNano()) / 1e9
				if math.Abs(mtime-old.FileMtime) < mtimeTolerance && info.Size() == old.FileSize {
					res.SessionsSkipped++
					continue
				}
			}
		}

		if _, n, err := ix.IndexFile(path); err != nil {
			slog.Warn("index transcript failed", "path", path, "error", err)
		} else {
			res.SessionsIndexed++
			res.MessagesIndexed += n
		}
	}

	// Reap index rows whose transcript files no longer exist.
	for path := range meta {
		if seen[path] {
			continue
		}
		if err := ix.store.DeleteByPath(path); err != nil {
			slog.Warn("reap orphan failed", "path", path, "error", err)
			continue
		}
		res.OrphansRemoved++
	}

	if res.SessionsIndexed > 0 || res.OrphansRemoved > 0 || force {
		if err := ix.store.RebuildFTS(); err != nil {
			slog.Warn("fts rebuild failed", "error", err)
		}
	}

	res.DurationMS = time.Since(start).Milliseconds()
	slog.Info("reindex complete",
		"indexed", res.SessionsIndexed,
		"skipped", res.SessionsSkipped,
		"messages", res.MessagesIndexed,
		"orphans", res.OrphansRemoved,
		"duration_ms", res.DurationMS)
	return res, nil
}

// Run reindexes on a fixed interval until the context ends. One pass runs
// immediately on start.
func (ix *Indexer) Run(ctx context.Context, interval time.Duration) {
	if _, err := ix.ReindexAll(ctx, false); err != nil && ctx.Err() == nil {
		slog.Error("initial reindex failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := ix.ReindexAll(ctx, false); err != nil && ctx.Err() == nil {
				slog.Error("reindex failed", "error", err)
			}
		}
	}
}

// findTranscripts lists *.jsonl files one level below the log root. Nested
// subagent transcripts are intentionally not picked up.
func (ix *Indexer) findTranscripts() ([]string, error) {
	entries, err := os.ReadDir(ix.logRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log root: %w", err)
	}

	var out []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(ix.logRoot, entry.Name(), "*.jsonl"))
		if err != nil {
			continue
		}
		out = append(out, matches...)
	}
	return out, nil
}

func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
