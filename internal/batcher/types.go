package batcher

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidConfig is returned by New when the batcher configuration is unusable.
	ErrInvalidConfig = errors.New("invalid batcher configuration")
	// ErrProcessorPanic wraps a panic recovered from a Processor call.
	ErrProcessorPanic = errors.New("processor panicked")
)

// User is the author of an inbound message.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

// Message is an immutable snapshot of an inbound chat message captured at arrival time.
type Message struct {
	ID           int
	ChatID       int64
	ChatType     string
	ChatTitle    string
	ChatUsername string
	From         User
	Text         string
	Timestamp    time.Time
}

// Trigger records what caused a batch to be flushed.
type Trigger string

const (
	TriggerSize     Trigger = "size"
	TriggerTimer    Trigger = "timer"
	TriggerManual   Trigger = "manual"
	TriggerShutdown Trigger = "shutdown"
)

// Batch is a finalized group of messages from one chat handed to the Processor.
type Batch struct {
	ID        string
	ChatID    int64
	Messages  []Message
	Target    int
	Trigger   Trigger
	CreatedAt time.Time
}

// Text joins the batch message texts with newlines, in arrival order.
func (b Batch) Text() string {
	n := 0
	for _, m := range b.Messages {
		n += len(m.Text) + 1
	}
	buf := make([]byte, 0, n)
	for i, m := range b.Messages {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, m.Text...)
	}
	return string(buf)
}

// Processor consumes a flushed batch and produces the reply text for its chat.
type Processor interface {
	Process(ctx context.Context, batch Batch) (string, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, batch Batch) (string, error)

// Process calls f(ctx, batch).
func (f ProcessorFunc) Process(ctx context.Context, batch Batch) (string, error) {
	return f(ctx, batch)
}

// Sender delivers reply text into a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// State is the lifecycle state of a chat inside the batcher.
type State int

const (
	StateNone State = iota
	StateAccumulating
	StateFlushing
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateFlushing:
		return "FLUSHING"
	default:
		return "UNKNOWN"
	}
}

// Stats is a point-in-time snapshot of batcher occupancy.
type Stats struct {
	PendingBatches  int `json:"pending_batches"`
	PendingMessages int `json:"pending_messages"`
	DedupRecords    int `json:"dedup_records"`
	DispatchQueues  int `json:"dispatch_queues"`
}
