// Package bot runs relaybot's long-lived components and shuts them down together.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Listener receives updates until ctx is canceled. *tgbot.Bot implements it.
type Listener interface {
	Start(ctx context.Context)
}

// Runner is an optional component that runs until ctx is canceled.
type Runner interface {
	Run(ctx context.Context) error
}

// Drainer flushes pending work on shutdown. *batcher.Batcher implements it.
type Drainer interface {
	Close(ctx context.Context) error
}

// Bot manages the lifecycle of the Telegram listener, the scheduler, the
// optional HTTP server and the batcher.
type Bot struct {
	logger       *slog.Logger
	listener     Listener
	scheduler    *Scheduler
	server       Runner
	batcher      Drainer
	drainTimeout time.Duration
}

// Option configures a Bot.
type Option func(*Bot)

// WithServer runs srv alongside the listener.
func WithServer(srv Runner) Option {
	return func(b *Bot) { b.server = srv }
}

// WithDrainTimeout bounds how long shutdown waits for in-flight batches.
func WithDrainTimeout(d time.Duration) Option {
	return func(b *Bot) { b.drainTimeout = d }
}

// NewBot creates the orchestrator.
func NewBot(logger *slog.Logger, listener Listener, scheduler *Scheduler, batcher Drainer, opts ...Option) *Bot {
	b := &Bot{
		logger:       logger.With("component", "bot_orchestrator"),
		listener:     listener,
		scheduler:    scheduler,
		batcher:      batcher,
		drainTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run starts every component and blocks until ctx is canceled or one of them
// fails. Pending batches are flushed before it returns.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")
		b.listener.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	if b.scheduler != nil {
		g.Go(func() error {
			if err := b.scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping scheduler...")
			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	if b.server != nil {
		g.Go(func() error {
			return b.server.Run(gCtx)
		})
	}

	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), b.drainTimeout)
	defer cancel()
	if drainErr := b.batcher.Close(drainCtx); drainErr != nil {
		b.logger.Error("Batcher did not drain cleanly", "error", drainErr)
		if err == nil {
			err = fmt.Errorf("drain batcher: %w", drainErr)
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
