package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// RunMaintenance performs a forced full rescan plus database compaction on a
// cron schedule until the context ends. An empty or invalid schedule
// disables maintenance.
func (ix *Indexer) RunMaintenance(ctx context.Context, schedule string) {
	if schedule == "" {
		return
	}
	gron := gronx.New()
	if !gron.IsValid(schedule) {
		slog.Warn("invalid maintenance schedule, skipping", "schedule", schedule)
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := gron.IsDue(schedule, now)
			if err != nil || !due {
				continue
			}
			ix.maintenancePass(ctx)
		}
	}
}

// maintenancePass reindexes everything regardless of recorded mtimes, then
// checkpoints the WAL.
func (ix *Indexer) maintenancePass(ctx context.Context) Result {
	res, err := ix.ReindexAll(ctx, true)
	if err != nil {
		slog.Warn("maintenance reindex failed", "error", err)
	} else {
		slog.Info("maintenance reindex complete",
			"sessions_indexed", res.SessionsIndexed,
			"orphans_removed", res.OrphansRemoved,
			"duration_ms", res.DurationMS)
	}
	if err := ix.store.Checkpoint(); err != nil {
		slog.Warn("maintenance checkpoint failed", "error", err)
	} else {
		slog.Info("maintenance checkpoint complete")
	}
	return res
}
