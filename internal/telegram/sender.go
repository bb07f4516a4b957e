package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/relaybot/internal/batcher"
	"github.com/edgard/relaybot/internal/text"
)

// MaxMessageLength is Telegram's limit for one text message, in characters.
const MaxMessageLength = 4096

type messageAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Sender delivers replies with SendMessage, splitting long text into several
// messages.
type Sender struct {
	api messageAPI
}

var _ batcher.Sender = (*Sender)(nil)

// NewSender creates a Sender. *bot.Bot satisfies api.
func NewSender(api messageAPI) *Sender {
	return &Sender{api: api}
}

// Send posts text to chatID. Delivery stops at the first failed chunk.
func (s *Sender) Send(ctx context.Context, chatID int64, reply string) error {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil
	}

	chunks := text.Split(reply, MaxMessageLength)
	for i, chunk := range chunks {
		if _, err := s.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: chunk}); err != nil {
			return fmt.Errorf("send part %d/%d to chat %d: %w", i+1, len(chunks), chatID, err)
		}
	}
	return nil
}
