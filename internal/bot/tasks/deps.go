// Package tasks implements the scheduled maintenance tasks for relaybot.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/relaybot/internal/database"
)

// DedupSweeper drops expired dedup records. *batcher.Batcher implements it.
type DedupSweeper interface {
	SweepDedup() int
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Batcher DedupSweeper
}

// ScheduledTaskFunc is the signature shared by all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error
