package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goremote/internal/config"
	"github.com/nextlevelbuilder/goremote/pkg/protocol"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

func runOnboard() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logRoot := cfg.Index.LogRoot
	port := strconv.Itoa(cfg.Server.Port)
	hostname := cfg.Server.Hostname
	coordinator := cfg.Federation.Coordinator

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("GoRemote Setup").
				Description("Point GoRemote at your Claude Code transcripts and pick how it listens.\nSecrets (Telegram, Discord, Tailscale) are read from environment variables\nand are never written to the config file."),
			huh.NewInput().
				Title("Transcript root").
				Description("Directory Claude Code writes session logs to.").
				Placeholder("~/.claude/projects").
				Value(&logRoot),
			huh.NewInput().
				Title("Listen port").
				Placeholder(strconv.Itoa(protocol.DefaultPort)).
				Value(&port).
				Validate(func(s string) error {
					if _, err := strconv.Atoi(s); err != nil {
						return fmt.Errorf("not a number: %s", s)
					}
					return nil
				}),
			huh.NewInput().
				Title("Machine name").
				Description("How this machine identifies itself to peers. Empty uses the OS hostname.").
				Value(&hostname),
			huh.NewConfirm().
				Title("Coordinator mode?").
				Description("Follow peer event streams so the dashboard shows every machine live.").
				Value(&coordinator),
		),
	)

	if err := form.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "onboard aborted: %v\n", err)
		os.Exit(1)
	}

	if logRoot != "" {
		cfg.Index.LogRoot = logRoot
	}
	if p, err := strconv.Atoi(port); err == nil && p > 0 {
		cfg.Server.Port = p
	}
	cfg.Server.Hostname = hostname
	cfg.Federation.Coordinator = coordinator

	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "save config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Config written to %s\n", cfgPath)
	fmt.Printf("Start the server with: goremote serve --port %d\n", cfg.Server.Port)
}
