package batcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// dispatcher runs claimed batches through the Processor and delivers the result.
// Each chat has a FIFO queue drained by at most one goroutine, so flushes of the same
// chat never overlap and keep claim order; different chats run in parallel.
type dispatcher struct {
	processor Processor
	sender    Sender
	log       *slog.Logger
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[int64][]Batch // key present while a drain goroutine owns the chat
	wg     conc.WaitGroup
}

func newDispatcher(cfg Config, processor Processor, sender Sender, log *slog.Logger) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{
		processor: processor,
		sender:    sender,
		log:       log,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		queues:    make(map[int64][]Batch),
	}
}

// submit never blocks; it is called with the batcher mutex held.
func (d *dispatcher) submit(batch Batch) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, running := d.queues[batch.ChatID]
	d.queues[batch.ChatID] = append(q, batch)
	if running {
		d.log.Debug("Chat already dispatching, batch queued", "chat_id", batch.ChatID, "batch_id", batch.ID, "queued", len(q)+1)
		return
	}

	chatID := batch.ChatID
	d.wg.Go(func() { d.drain(chatID) })
}

func (d *dispatcher) drain(chatID int64) {
	for {
		d.mu.Lock()
		q := d.queues[chatID]
		if len(q) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		next := q[0]
		d.queues[chatID] = q[1:]
		d.mu.Unlock()

		d.run(next)
	}
}

func (d *dispatcher) busy(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.queues[chatID]
	return ok
}

func (d *dispatcher) queueCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

func (d *dispatcher) run(batch Batch) {
	log := d.log.With(
		"chat_id", batch.ChatID,
		"batch_id", batch.ID,
		"trigger", string(batch.Trigger),
		"size", len(batch.Messages),
	)
	start := time.Now()
	log.Debug("Dispatching batch")

	reply, err := d.process(batch)
	switch {
	case err != nil:
		log.Error("Batch processing failed, sending fallback", "error", err)
		reply = d.cfg.FallbackMessage
	case strings.TrimSpace(reply) == "":
		log.Warn("Processor returned empty reply, using fallback")
		reply = d.cfg.EmptyReplyMessage
	}

	if reply == "" {
		log.Warn("No reply to deliver for batch")
		return
	}

	if err := d.send(batch.ChatID, reply); err != nil {
		log.Error("Failed to deliver batch reply", "error", err)
		return
	}

	log.Info("Batch dispatched", "duration", time.Since(start))
}

func (d *dispatcher) process(batch Batch) (reply string, err error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.ProcessTimeout)
	defer cancel()

	var pc panics.Catcher
	pc.Try(func() {
		reply, err = d.processor.Process(ctx, batch)
	})
	if r := pc.Recovered(); r != nil {
		return "", fmt.Errorf("%w: %w", ErrProcessorPanic, r.AsError())
	}
	return reply, err
}

func (d *dispatcher) send(chatID int64, text string) (err error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
	defer cancel()

	var pc panics.Catcher
	pc.Try(func() {
		err = d.sender.Send(ctx, chatID, text)
	})
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("sender panicked: %w", r.AsError())
	}
	return err
}

// wait blocks until every queued batch has been dispatched or ctx is done. On ctx
// expiry the in-flight calls are cancelled.
func (d *dispatcher) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("waiting for in-flight batches: %w", ctx.Err())
	}
}
