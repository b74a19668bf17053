package procdetect

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"
)

const subprocessTimeout = 5 * time.Second

var (
	resumeRe    = regexp.MustCompile(`--resume\s+([a-f0-9-]{36})`)
	sessionIDRe = regexp.MustCompile(`--session-id\s+([a-f0-9-]{36})`)
)

// Detector discovers assistant processes that are currently running and maps
// them back to session IDs.
type Detector struct {
	logRoot string
	exclude []string
}

// New builds a detector. exclude lists command-line markers that disqualify a
// process even though it mentions the assistant binary (browser helpers, this
// server itself, and so on).
func New(logRoot string, exclude []string) *Detector {
	return &Detector{logRoot: logRoot, exclude: exclude}
}

// ActiveSessionIDs returns the set of session IDs bound to a live assistant
// process. Detection failures yield an empty set, never an error: absence of
// evidence is reported as absence.
func (d *Detector) ActiveSessionIDs(ctx context.Context) map[string]bool {
	if runtime.GOOS == "linux" {
		return d.detectProc()
	}
	return d.detectPS(ctx)
}

// detectProc walks /proc directly; no subprocess needed.
func (d *Detector) detectProc() map[string]bool {
	active := make(map[string]bool)
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return active
	}
	for _, entry := range entries {
		if !entry.IsDir() || !isNumeric(entry.Name()) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil {
			continue
		}
		cmdline := strings.ReplaceAll(string(raw), "\x00", " ")
		if !d.isCandidate(cmdline) {
			continue
		}
		cwd, _ := os.Readlink(filepath.Join("/proc", entry.Name(), "cwd"))
		if sid := d.extractSessionID(cmdline, cwd); sid != "" {
			active[sid] = true
		}
	}
	return active
}

// detectPS shells out to ps on platforms without /proc.
func (d *Detector) detectPS(ctx context.Context) map[string]bool {
	active := make(map[string]bool)
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ps", "aux").Output()
	if err != nil {
		return active
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !d.isCandidate(line) {
			continue
		}
		if strings.Contains(line, "grep") || strings.Contains(line, "--claude-in-chrome-mcp") {
			continue
		}
		if sid := d.extractSessionID(line, ""); sid != "" {
			active[sid] = true
			continue
		}
		// Plain or --continue invocations carry no id; fall back to a path
		// argument that names a real directory.
		if cwd := guessCwd(line); cwd != "" {
			if sid := d.mostRecentSessionIn(cwd); sid != "" {
				active[sid] = true
			}
		}
	}
	return active
}

func (d *Detector) isCandidate(cmdline string) bool {
	if !strings.Contains(strings.ToLower(cmdline), "claude") {
		return false
	}
	for _, marker := range d.exclude {
		if marker != "" && strings.Contains(cmdline, marker) {
			return false
		}
	}
	return true
}

// extractSessionID resolves the session a process is serving: an explicit
// --resume or --session-id UUID wins, otherwise the most recent transcript of
// the process's working directory.
func (d *Detector) extractSessionID(cmdline, cwd string) string {
	if m := resumeRe.FindStringSubmatch(cmdline); m != nil {
		return m[1]
	}
	if m := sessionIDRe.FindStringSubmatch(cmdline); m != nil {
		return m[1]
	}
	if cwd != "" {
		return d.mostRecentSessionIn(cwd)
	}
	return ""
}

// mostRecentSessionIn maps a working directory to its transcript directory
// and returns the stem of the newest transcript there.
func (d *Detector) mostRecentSessionIn(cwd string) string {
	name := "-" + strings.TrimLeft(strings.ReplaceAll(cwd, "/", "-"), "-")
	matches, err := filepath.Glob(filepath.Join(d.logRoot, name, "*.jsonl"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	type candidate struct {
		path  string
		mtime time.Time
	}
	var files []candidate
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			files = append(files, candidate{m, info.ModTime()})
		}
	}
	if len(files) == 0 {
		return ""
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })
	base := filepath.Base(files[0].path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func guessCwd(line string) string {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		if strings.HasPrefix(fields[i], "/") {
			if info, err := os.Stat(fields[i]); err == nil && info.IsDir() {
				return fields[i]
			}
		}
	}
	return ""
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
