// Package events publishes a record of every processed batch to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// BatchProcessed describes the outcome of one flushed batch.
type BatchProcessed struct {
	BatchID     string    `json:"batch_id"`
	ChatID      int64     `json:"chat_id"`
	MessageIDs  []int     `json:"message_ids"`
	Target      int       `json:"target"`
	Trigger     string    `json:"trigger"`
	ReplyLength int       `json:"reply_length"`
	Error       string    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Publisher emits batch events.
type Publisher interface {
	Publish(ctx context.Context, ev BatchProcessed) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by chat so a chat's events stay
// ordered within one partition.
type KafkaPublisher struct {
	writer messageWriter
	log    *slog.Logger
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		log: log.With("component", "events", "topic", topic),
	}
}

// Publish writes ev.
func (p *KafkaPublisher) Publish(ctx context.Context, ev BatchProcessed) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.ChatID, 10)),
		Value: data,
		Time:  ev.ProcessedAt,
	})
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	p.log.DebugContext(ctx, "Batch event published", "batch_id", ev.BatchID, "chat_id", ev.ChatID)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop discards events.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, BatchProcessed) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }

// New returns a Kafka publisher when brokers are configured, Noop otherwise.
//
//nolint:ireturn // either implementation may be returned
func New(brokers []string, topic string, log *slog.Logger) Publisher {
	if len(brokers) == 0 {
		return Noop{}
	}
	return NewKafkaPublisher(brokers, topic, log)
}
