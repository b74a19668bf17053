package tmuxctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

const commandTimeout = 5 * time.Second

var (
	// ErrInvalidDir means a spawn was requested for a path that is not a
	// directory.
	ErrInvalidDir = errors.New("working directory does not exist")
	// ErrNoSession means the named multiplexer session does not exist.
	ErrNoSession = errors.New("session not found")
)

// Session describes one managed multiplexer session.
type Session struct {
	Name        string `json:"name"`
	CreatedUnix int64  `json:"created_unix"`
	Cwd         string `json:"cwd"`
	PanePID     int    `json:"pid"`
}

// ShortID returns the session name with the managed prefix stripped.
func (s Session) ShortID() string {
	return strings.TrimPrefix(s.Name, protocol.SessionPrefix)
}

// Controller drives tmux through its CLI. Only sessions carrying the managed
// prefix are ever touched.
type Controller struct {
	TmuxBin   string
	ClaudeBin string
}

func New(tmuxBin, claudeBin string) *Controller {
	return &Controller{TmuxBin: tmuxBin, ClaudeBin: claudeBin}
}

func (c *Controller) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, c.TmuxBin, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Spawn creates a detached session named prefix+shortID running the assistant
// in workingDir, optionally resuming an existing conversation.
func (c *Controller) Spawn(ctx context.Context, shortID, workingDir, resumeID string, rows, cols int) (string, error) {
	info, err := os.Stat(workingDir)
	if err != nil || !info.IsDir() {
		return "", ErrInvalidDir
	}
	name := protocol.SessionPrefix + shortID

	command := c.ClaudeBin
	if resumeID != "" {
		command += " --resume " + resumeID
	}
	args := []string{
		"new-session", "-d",
		"-s", name,
		"-x", strconv.Itoa(cols),
		"-y", strconv.Itoa(rows),
		"-c", workingDir,
		command,
	}
	if _, err := c.run(ctx, args...); err != nil {
		return "", err
	}
	return name, nil
}

// List enumerates managed sessions.
func (c *Controller) List(ctx context.Context) ([]Session, error) {
	out, err := c.run(ctx, "list-sessions", "-F",
		"#{session_name}|#{session_created}|#{pane_current_path}|#{pane_pid}")
	if err != nil {
		// tmux exits nonzero when no server is running; treat as empty.
		return nil, nil
	}

	return parseSessions(out), nil
}

func parseSessions(out string) []Session {
	var sessions []Session
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 || !strings.HasPrefix(parts[0], protocol.SessionPrefix) {
			continue
		}
		created, _ := strconv.ParseInt(parts[1], 10, 64)
		pid, _ := strconv.Atoi(parts[3])
		sessions = append(sessions, Session{
			Name:        parts[0],
			CreatedUnix: created,
			Cwd:         parts[2],
			PanePID:     pid,
		})
	}
	return sessions
}

// ShortIDs returns the short IDs of all managed sessions.
func (c *Controller) ShortIDs(ctx context.Context) map[string]bool {
	sessions, _ := c.List(ctx)
	out := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		out[s.ShortID()] = true
	}
	return out
}

// Exists reports whether the named session is alive.
func (c *Controller) Exists(ctx context.Context, name string) bool {
	_, err := c.run(ctx, "has-session", "-t", name)
	return err == nil
}

// Kill terminates the named session.
func (c *Controller) Kill(ctx context.Context, name string) error {
	if !c.Exists(ctx, name) {
		return ErrNoSession
	}
	_, err := c.run(ctx, "kill-session", "-t", name)
	return err
}

// Resize sets the window size of the named session.
func (c *Controller) Resize(ctx context.Context, name string, rows, cols int) error {
	_, err := c.run(ctx, "resize-window", "-t", name,
		"-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))
	return err
}

// Inject types text into the named session followed by Enter. A single
// trailing newline is stripped since the Enter keystroke supplies it.
func (c *Controller) Inject(ctx context.Context, name, text string) error {
	if !c.Exists(ctx, name) {
		return ErrNoSession
	}
	text = injectPayload(text)
	if _, err := c.run(ctx, "send-keys", "-t", name, "-l", "--", text); err != nil {
		return err
	}
	_, err := c.run(ctx, "send-keys", "-t", name, "Enter")
	return err
}

// FindByResume locates the managed session whose pane runs the assistant
// with --resume <sessionID>, checking the pane process and its direct
// children. Makes join idempotent.
func (c *Controller) FindByResume(ctx context.Context, sessionID string) (string, bool) {
	sessions, err := c.List(ctx)
	if err != nil || len(sessions) == 0 {
		return "", false
	}
	procs := listProcesses(ctx)
	marker := "--resume " + sessionID

	for _, sess := range sessions {
		for _, p := range procs {
			if p.pid != sess.PanePID && p.ppid != sess.PanePID {
				continue
			}
			if strings.Contains(p.args, marker) {
				return sess.Name, true
			}
		}
	}
	return "", false
}

// injectPayload strips one trailing newline; the Enter keystroke that
// follows the literal send supplies the terminator.
func injectPayload(text string) string {
	text = strings.TrimSuffix(text, "\n")
	return strings.TrimSuffix(text, "\r")
}

type process struct {
	pid  int
	ppid int
	args string
}

func listProcesses(ctx context.Context) []process {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "ps", "-axo", "pid=,ppid=,args=").Output()
	if err != nil {
		return nil
	}
	var procs []process
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err1 := strconv.Atoi(fields[0])
		ppid, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		procs = append(procs, process{pid: pid, ppid: ppid, args: strings.Join(fields[2:], " ")})
	}
	return procs
}

// Attach starts `tmux attach-session` on a fresh PTY and returns the master
// plus the attach process. Read-only attach is used for spectators. The
// caller owns both: close the master and terminate the command when the
// bridge ends. The tmux session itself is never signalled here.
func (c *Controller) Attach(ctx context.Context, name string, spectator bool, rows, cols int) (*os.File, *exec.Cmd, error) {
	if !c.Exists(ctx, name) {
		return nil, nil, ErrNoSession
	}

	args := []string{"attach-session", "-t", name}
	if spectator {
		args = append(args, "-r")
	}
	cmd := exec.CommandContext(ctx, c.TmuxBin, args...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 2 * time.Second

	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start attach pty: %w", err)
	}
	return master, cmd, nil
}

// SetSize resizes an attach PTY.
func SetSize(master *os.File, rows, cols int) error {
	return pty.Setsize(master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}
