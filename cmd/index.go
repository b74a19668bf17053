package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goremote/internal/config"
	"github.com/nextlevelbuilder/goremote/internal/indexer"
	"github.com/nextlevelbuilder/goremote/internal/store"
)

func indexCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run one reindex pass over the transcript root and exit",
		Run: func(cmd *cobra.Command, args []string) {
			runIndex(force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reindex every transcript, ignoring recorded mtimes")
	return cmd
}

func runIndex(force bool) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open index database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	res, err := indexer.New(st, cfg.LogRoot()).ReindexAll(context.Background(), force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reindex: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("indexed %d sessions (%d messages), skipped %d unchanged, removed %d orphans in %dms\n",
		res.SessionsIndexed, res.MessagesIndexed, res.SessionsSkipped, res.OrphansRemoved, res.DurationMS)
}
