package handlers

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/relaybot/internal/batcher"
)

// NewMessageHandler returns the default handler: every plain message and
// channel post that passes the chat's reply policy is queued for batching.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	return messageHandler{deps}.Handle
}

type messageHandler struct {
	deps HandlerDeps
}

// MessageFromUpdate converts a message or channel post into a batcher message.
// It reports false for updates without text or caption.
func MessageFromUpdate(update *models.Update) (batcher.Message, bool) {
	if update == nil {
		return batcher.Message{}, false
	}
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return batcher.Message{}, false
	}

	content := strings.TrimSpace(msg.Text)
	if caption := strings.TrimSpace(msg.Caption); caption != "" {
		if content != "" {
			content += " " + caption
		} else {
			content = caption
		}
	}
	if content == "" {
		return batcher.Message{}, false
	}

	out := batcher.Message{
		ID:           msg.ID,
		ChatID:       msg.Chat.ID,
		ChatType:     string(msg.Chat.Type),
		ChatTitle:    msg.Chat.Title,
		ChatUsername: msg.Chat.Username,
		Text:         content,
		Timestamp:    time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.From != nil {
		out.From = batcher.User{
			ID:        msg.From.ID,
			Username:  msg.From.Username,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
			IsBot:     msg.From.IsBot,
		}
	}
	return out, true
}

func isCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// IsConversation matches updates the message handler should see: messages and
// channel posts with text that is not a command.
func IsConversation(update *models.Update) bool {
	msg, ok := MessageFromUpdate(update)
	return ok && !isCommand(msg.Text)
}

func (h messageHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	msg, ok := MessageFromUpdate(update)
	if !ok {
		log.DebugContext(ctx, "Ignoring update without text", "update_id", update.ID)
		return
	}
	if isCommand(msg.Text) {
		log.DebugContext(ctx, "Ignoring unknown command", "chat_id", msg.ChatID, "message_id", msg.ID)
		return
	}
	if msg.From.IsBot {
		return
	}

	policy := h.deps.Config.Channel(msg.ChatID, msg.ChatUsername)
	if !policy.AllowReplies {
		log.DebugContext(ctx, "Replies disabled for chat", "chat_id", msg.ChatID)
		return
	}
	if policy.ReplyProbability < 1 && h.deps.Rand() >= policy.ReplyProbability {
		log.DebugContext(ctx, "Skipping message based on reply probability", "chat_id", msg.ChatID, "probability", policy.ReplyProbability)
		return
	}

	if !h.deps.Batcher.Enqueue(msg) {
		log.DebugContext(ctx, "Message not queued", "chat_id", msg.ChatID, "message_id", msg.ID)
	}
}
