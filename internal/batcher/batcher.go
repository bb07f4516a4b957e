// Package batcher accumulates inbound chat messages into per-chat batches and hands
// each finished batch to a Processor. A batch is flushed when it reaches a randomly
// drawn target size or when its accumulation timer expires, whichever happens first.
// Redelivered messages are dropped by a time-windowed dedup gate.
package batcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Config holds the batcher timing and sizing parameters.
type Config struct {
	Timeout           time.Duration // accumulation window started by the first message of a batch
	DedupWindow       time.Duration
	MaxDedupRecords   int
	MinBatchSize      int
	MaxBatchSize      int
	ProcessTimeout    time.Duration
	SendTimeout       time.Duration
	FallbackMessage   string // sent when the processor fails
	EmptyReplyMessage string // sent when the processor returns blank text
}

// DefaultConfig returns the stock batcher parameters.
func DefaultConfig() Config {
	return Config{
		Timeout:           20 * time.Second,
		DedupWindow:       60 * time.Second,
		MaxDedupRecords:   10000,
		MinBatchSize:      1,
		MaxBatchSize:      6,
		ProcessTimeout:    2 * time.Minute,
		SendTimeout:       10 * time.Second,
		FallbackMessage:   "I'm sorry, I encountered an error while processing your request.",
		EmptyReplyMessage: "I'm sorry, I couldn't generate a response.",
	}
}

func (c Config) validate() error {
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case c.DedupWindow <= 0:
		return fmt.Errorf("%w: dedup window must be positive", ErrInvalidConfig)
	case c.MinBatchSize < 1:
		return fmt.Errorf("%w: min batch size must be at least 1", ErrInvalidConfig)
	case c.MaxBatchSize < c.MinBatchSize:
		return fmt.Errorf("%w: max batch size %d is below min batch size %d", ErrInvalidConfig, c.MaxBatchSize, c.MinBatchSize)
	case c.ProcessTimeout <= 0:
		return fmt.Errorf("%w: process timeout must be positive", ErrInvalidConfig)
	case c.SendTimeout <= 0:
		return fmt.Errorf("%w: send timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// TargetSizer draws the target size of a new batch from [min, max].
type TargetSizer func(min, max int) int

func uniformTarget(min, max int) int {
	return min + rand.IntN(max-min+1)
}

// Option customizes a Batcher.
type Option func(*Batcher)

// WithClock sets the clock used for batch timers and dedup expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(b *Batcher) {
		b.clock = clock
	}
}

// WithTargetSizer replaces the uniform random target size draw.
func WithTargetSizer(sizer TargetSizer) Option {
	return func(b *Batcher) {
		b.sizer = sizer
	}
}

type pendingBatch struct {
	id        string
	chatID    int64
	messages  []Message
	target    int
	createdAt time.Time
	timer     clockwork.Timer
}

func (p *pendingBatch) finalize(trigger Trigger) Batch {
	msgs := make([]Message, len(p.messages))
	copy(msgs, p.messages)
	return Batch{
		ID:        p.id,
		ChatID:    p.chatID,
		Messages:  msgs,
		Target:    p.target,
		Trigger:   trigger,
		CreatedAt: p.createdAt,
	}
}

// Batcher owns the per-chat pending batches and the dedup gate. All batch state
// transitions happen under mu; a batch is flushed by whichever trigger first claims
// it (removes it from the active map while it is still the chat's current batch).
type Batcher struct {
	cfg      Config
	log      *slog.Logger
	clock    clockwork.Clock
	sizer    TargetSizer
	dedup    *DedupGate
	dispatch *dispatcher

	mu      sync.Mutex
	batches map[int64]*pendingBatch
	closed  bool
}

// New creates a Batcher that sends flushed batches to processor and delivers the
// resulting text through sender.
func New(cfg Config, processor Processor, sender Sender, logger *slog.Logger, opts ...Option) (*Batcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if processor == nil || sender == nil {
		return nil, fmt.Errorf("%w: processor and sender are required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := logger.With("component", "batcher")

	b := &Batcher{
		cfg:     cfg,
		log:     log,
		clock:   clockwork.NewRealClock(),
		sizer:   uniformTarget,
		batches: make(map[int64]*pendingBatch),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.dedup = NewDedupGate(b.clock, cfg.DedupWindow, cfg.MaxDedupRecords)
	b.dispatch = newDispatcher(cfg, processor, sender, log)

	log.Info("Batcher initialized",
		"timeout", cfg.Timeout,
		"dedup_window", cfg.DedupWindow,
		"min_batch_size", cfg.MinBatchSize,
		"max_batch_size", cfg.MaxBatchSize)
	return b, nil
}

// Enqueue admits msg through the dedup gate and appends it to its chat's batch,
// starting a new batch when none is accumulating. It returns false when the
// message was dropped as a duplicate or the batcher is closed.
func (b *Batcher) Enqueue(msg Message) bool {
	if !b.dedup.Admit(msg.ChatID, msg.ID) {
		b.log.Debug("Duplicate message dropped", "chat_id", msg.ChatID, "message_id", msg.ID)
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.log.Warn("Batcher closed, dropping message", "chat_id", msg.ChatID, "message_id", msg.ID)
		return false
	}

	pb, ok := b.batches[msg.ChatID]
	if !ok {
		pb = b.startBatchLocked(msg.ChatID)
	}
	pb.messages = append(pb.messages, msg)

	b.log.Debug("Message enqueued",
		"chat_id", msg.ChatID,
		"message_id", msg.ID,
		"batch_id", pb.id,
		"queued", len(pb.messages),
		"target", pb.target)

	if len(pb.messages) >= pb.target {
		b.claimLocked(pb, true)
		b.dispatch.submit(pb.finalize(TriggerSize))
	}
	return true
}

// Flush claims the chat's accumulating batch and dispatches it immediately.
// It returns false if the chat has no batch.
func (b *Batcher) Flush(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	pb, ok := b.batches[chatID]
	if !ok {
		return false
	}
	b.claimLocked(pb, true)
	b.dispatch.submit(pb.finalize(TriggerManual))
	return true
}

// State reports where the chat is in its batch lifecycle.
func (b *Batcher) State(chatID int64) State {
	b.mu.Lock()
	_, accumulating := b.batches[chatID]
	b.mu.Unlock()

	if accumulating {
		return StateAccumulating
	}
	if b.dispatch.busy(chatID) {
		return StateFlushing
	}
	return StateNone
}

// SweepDedup removes expired dedup records and returns how many were dropped.
func (b *Batcher) SweepDedup() int {
	return b.dedup.Sweep()
}

// Stats returns current occupancy counters.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	st := Stats{PendingBatches: len(b.batches)}
	for _, pb := range b.batches {
		st.PendingMessages += len(pb.messages)
	}
	b.mu.Unlock()

	st.DedupRecords = b.dedup.Len()
	st.DispatchQueues = b.dispatch.queueCount()
	return st
}

// Close stops accepting messages, flushes every accumulating batch and waits for
// dispatches to finish or ctx to expire.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	flushed := len(b.batches)
	for _, pb := range b.batches {
		b.claimLocked(pb, true)
		b.dispatch.submit(pb.finalize(TriggerShutdown))
	}
	b.mu.Unlock()

	b.log.Info("Batcher closing, waiting for in-flight batches", "flushed", flushed)
	if err := b.dispatch.wait(ctx); err != nil {
		b.log.Warn("Batcher closed before all batches were dispatched", "error", err)
		return err
	}
	b.log.Info("Batcher closed")
	return nil
}

func (b *Batcher) startBatchLocked(chatID int64) *pendingBatch {
	pb := &pendingBatch{
		id:        uuid.NewString(),
		chatID:    chatID,
		target:    b.drawTarget(),
		createdAt: b.clock.Now(),
	}
	pb.timer = b.clock.AfterFunc(b.cfg.Timeout, func() { b.expire(pb) })
	b.batches[chatID] = pb

	b.log.Debug("Batch started", "chat_id", chatID, "batch_id", pb.id, "target", pb.target, "timeout", b.cfg.Timeout)
	return pb
}

func (b *Batcher) drawTarget() int {
	n := b.sizer(b.cfg.MinBatchSize, b.cfg.MaxBatchSize)
	return min(max(n, b.cfg.MinBatchSize), b.cfg.MaxBatchSize)
}

// expire is the timer callback of pb. It must not call into the clock.
func (b *Batcher) expire(pb *pendingBatch) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.batches[pb.chatID] != pb {
		b.log.Debug("Timer fired for already flushed batch", "chat_id", pb.chatID, "batch_id", pb.id)
		return
	}
	b.claimLocked(pb, false)
	b.dispatch.submit(pb.finalize(TriggerTimer))
}

// claimLocked removes pb from the active map. The caller must have checked that pb
// is the chat's current batch.
func (b *Batcher) claimLocked(pb *pendingBatch, stopTimer bool) {
	delete(b.batches, pb.chatID)
	if stopTimer && pb.timer != nil {
		pb.timer.Stop()
	}
}
