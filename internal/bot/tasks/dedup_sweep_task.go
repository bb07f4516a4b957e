package tasks

import (
	"context"
)

// newDedupSweepTask bounds dedup memory in chats that have gone quiet; Admit
// only expires records lazily when new messages arrive.
func newDedupSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "dedup_sweep")

	return func(ctx context.Context) error {
		if removed := deps.Batcher.SweepDedup(); removed > 0 {
			log.DebugContext(ctx, "Expired dedup records removed", "count", removed)
		}
		return nil
	}
}
