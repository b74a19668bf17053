package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goremote/internal/config"
	"github.com/nextlevelbuilder/goremote/internal/federation"
	"github.com/nextlevelbuilder/goremote/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("goremote doctor")
	fmt.Printf("  %-12s %s\n", "Version:", Version)
	fmt.Printf("  %-12s %s/%s\n", "OS:", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  %-12s %s\n", "Go:", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Printf("  %-12s %s (NOT FOUND — defaults in effect, run: goremote onboard)\n", "Config:", cfgPath)
	} else {
		fmt.Printf("  %-12s %s (OK)\n", "Config:", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Transcript root
	logRoot := cfg.LogRoot()
	if info, err := os.Stat(logRoot); err != nil {
		fmt.Printf("  %-12s %s (NOT FOUND)\n", "Log root:", logRoot)
	} else if !info.IsDir() {
		fmt.Printf("  %-12s %s (NOT A DIRECTORY)\n", "Log root:", logRoot)
	} else {
		entries, _ := os.ReadDir(logRoot)
		projects := 0
		for _, e := range entries {
			if e.IsDir() {
				projects++
			}
		}
		fmt.Printf("  %-12s %s (%d projects)\n", "Log root:", logRoot, projects)
	}

	// Index database — opening runs migrations, which exercises FTS5.
	if st, err := store.Open(cfg.DatabasePath()); err != nil {
		fmt.Printf("  %-12s %s (OPEN FAILED: %s)\n", "Database:", cfg.DatabasePath(), err)
	} else {
		var sessions int
		st.DB().QueryRow("SELECT COUNT(*) FROM sessions").Scan(&sessions)
		fmt.Printf("  %-12s %s (%d sessions indexed)\n", "Database:", cfg.DatabasePath(), sessions)
		st.Close()
	}

	fmt.Println()

	// Terminal control dependencies
	checkBinary("tmux:", cfg.Terminal.TmuxBin, "tmux")
	checkBinary("claude:", cfg.Terminal.ClaudeBin, "claude")

	fmt.Println()

	// Federation
	peers, err := federation.LoadPeers(cfg.MachinesPath())
	switch {
	case err != nil:
		fmt.Printf("  %-12s %s (PARSE FAILED: %s)\n", "Machines:", cfg.MachinesPath(), err)
	case len(peers) == 0:
		fmt.Printf("  %-12s none configured\n", "Machines:")
	default:
		names := make([]string, 0, len(peers))
		for _, p := range peers {
			names = append(names, p.Hostname)
		}
		fmt.Printf("  %-12s %s\n", "Machines:", strings.Join(names, ", "))
	}

	// Notifications
	senders := []string{}
	if cfg.Notify.Telegram.Enabled {
		senders = append(senders, "telegram")
	}
	if cfg.Notify.Discord.Enabled {
		senders = append(senders, "discord")
	}
	if cfg.Notify.Webhook.URL != "" {
		senders = append(senders, "webhook")
	}
	if len(senders) == 0 {
		fmt.Printf("  %-12s none configured\n", "Notify:")
	} else {
		fmt.Printf("  %-12s %s\n", "Notify:", strings.Join(senders, ", "))
	}
}

func checkBinary(label, configured, fallback string) {
	bin := configured
	if bin == "" {
		bin = fallback
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		fmt.Printf("  %-12s %s (NOT FOUND in PATH)\n", label, bin)
		return
	}
	fmt.Printf("  %-12s %s\n", label, path)
}
