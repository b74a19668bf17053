package procdetect

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExtractSessionID(t *testing.T) {
	d := New(t.TempDir(), nil)
	uuid := "0a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9"

	tests := []struct {
		name    string
		cmdline string
		want    string
	}{
		{"resume flag", "claude --resume " + uuid, uuid},
		{"session id flag", "claude --session-id " + uuid, uuid},
		{"resume wins over session id", "claude --resume " + uuid + " --session-id ffffffff-0000-0000-0000-000000000000", uuid},
		{"short id rejected", "claude --resume 0a1b2c3d", ""},
		{"no id no cwd", "claude --continue", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.extractSessionID(tt.cmdline, ""); got != tt.want {
				t.Errorf("extractSessionID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractSessionIDFromCwd(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "-home-dev-proj")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	older := filepath.Join(dir, "older-session.jsonl")
	newer := filepath.Join(dir, "newer-session.jsonl")
	for _, p := range []string{older, newer} {
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatal(err)
	}

	d := New(root, nil)
	if got := d.extractSessionID("claude --continue", "/home/dev/proj"); got != "newer-session" {
		t.Errorf("got %q, want newer-session", got)
	}
	if got := d.extractSessionID("claude", "/home/dev/unknown"); got != "" {
		t.Errorf("unknown cwd got %q", got)
	}
}

func TestIsCandidate(t *testing.T) {
	d := New(t.TempDir(), []string{"--chrome-native-host", "server.py"})

	tests := []struct {
		name    string
		cmdline string
		want    bool
	}{
		{"plain claude", "claude --resume abc", true},
		{"case insensitive", "/usr/bin/Claude", true},
		{"unrelated process", "vim main.go", false},
		{"excluded marker", "claude --chrome-native-host", false},
		{"own server", "python server.py claude", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.isCandidate(tt.cmdline); got != tt.want {
				t.Errorf("isCandidate(%q) = %v, want %v", tt.cmdline, got, tt.want)
			}
		})
	}
}

func TestGuessCwd(t *testing.T) {
	dir := t.TempDir()
	if got := guessCwd("dev 123 claude --continue " + dir); got != dir {
		t.Errorf("guessCwd = %q, want %q", got, dir)
	}
	if got := guessCwd("dev 123 claude /no/such/dir"); got != "" {
		t.Errorf("guessCwd = %q, want empty", got)
	}
}
