package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/relaybot/internal/batcher"
)

// DefaultTypingInterval is how often the typing action is refreshed. Telegram
// clears it after about five seconds.
const DefaultTypingInterval = 4 * time.Second

type chatActionAPI interface {
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// TypingProcessor shows "typing..." in the chat while the wrapped processor runs.
type TypingProcessor struct {
	next     batcher.Processor
	api      chatActionAPI
	interval time.Duration
	log      *slog.Logger
}

var _ batcher.Processor = (*TypingProcessor)(nil)

// NewTypingProcessor wraps next.
func NewTypingProcessor(next batcher.Processor, api chatActionAPI, interval time.Duration, log *slog.Logger) *TypingProcessor {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	return &TypingProcessor{next: next, api: api, interval: interval, log: log.With("component", "typing")}
}

// Process runs the wrapped processor with a typing indicator.
func (t *TypingProcessor) Process(ctx context.Context, batch batcher.Batch) (string, error) {
	typingCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.sendContinuousTyping(typingCtx, batch.ChatID)
	}()
	defer func() {
		cancel()
		<-done
	}()

	return t.next.Process(ctx, batch)
}

func (t *TypingProcessor) sendContinuousTyping(ctx context.Context, chatID int64) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		_, err := t.api.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Debug("Typing action failed", "error", err, "chat_id", chatID)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
