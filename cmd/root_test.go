package cmd

import "testing"

func TestRootCommandAcceptsServerFlags(t *testing.T) {
	t.Cleanup(func() {
		serveHost, servePort = "", 0
		serveHTTPS, serveCoordinator = false, false
		serveLogRoot = ""
	})

	if err := rootCmd.ParseFlags([]string{
		"--port", "8080", "--host", "127.0.0.1", "--coordinator", "--https",
	}); err != nil {
		t.Fatalf("parse root flags: %v", err)
	}
	if servePort != 8080 {
		t.Errorf("port = %d, want 8080", servePort)
	}
	if serveHost != "127.0.0.1" {
		t.Errorf("host = %q, want 127.0.0.1", serveHost)
	}
	if !serveCoordinator || !serveHTTPS {
		t.Errorf("coordinator = %v https = %v, want both true", serveCoordinator, serveHTTPS)
	}
}

func TestServeSubcommandCarriesSameFlags(t *testing.T) {
	t.Cleanup(func() {
		serveHost, servePort = "", 0
		serveHTTPS, serveCoordinator = false, false
		serveLogRoot = ""
	})

	cmd := serveCmd()
	if err := cmd.ParseFlags([]string{"--log-root", "/tmp/projects", "--port", "9000"}); err != nil {
		t.Fatalf("parse serve flags: %v", err)
	}
	if serveLogRoot != "/tmp/projects" {
		t.Errorf("log root = %q, want /tmp/projects", serveLogRoot)
	}
	if servePort != 9000 {
		t.Errorf("port = %d, want 9000", servePort)
	}
}
