package tmuxctl

import (
	"context"
	"errors"
	"testing"
)

func TestParseSessions(t *testing.T) {
	out := `claude-remote-ab12cd34|1748770000|/home/dev/proj|4242
other-session|1748770001|/tmp|99
claude-remote-ef56ab78|1748770002|/home/dev/cli|4343
malformed line
`
	sessions := parseSessions(out)
	if len(sessions) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(sessions), sessions)
	}
	first := sessions[0]
	if first.Name != "claude-remote-ab12cd34" || first.CreatedUnix != 1748770000 ||
		first.Cwd != "/home/dev/proj" || first.PanePID != 4242 {
		t.Errorf("first = %+v", first)
	}
	if first.ShortID() != "ab12cd34" {
		t.Errorf("ShortID = %q", first.ShortID())
	}
}

func TestParseSessionsEmpty(t *testing.T) {
	if got := parseSessions(""); got != nil {
		t.Errorf("parseSessions(\"\") = %+v", got)
	}
	if got := parseSessions("plain-session|1|/tmp|2"); got != nil {
		t.Errorf("unmanaged session parsed: %+v", got)
	}
}

func TestInjectPayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"trailing newline", "hello\n", "hello"},
		{"crlf", "hello\r\n", "hello"},
		{"inner newlines kept", "a\nb\n", "a\nb"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := injectPayload(tt.in); got != tt.want {
				t.Errorf("injectPayload(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSpawnRejectsBadWorkingDir(t *testing.T) {
	c := New("tmux", "claude")
	if _, err := c.Spawn(context.Background(), "ab12cd34", "/no/such/dir", "", 24, 80); !errors.Is(err, ErrInvalidDir) {
		t.Errorf("err = %v, want ErrInvalidDir", err)
	}
}
