package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/relaybot/internal/database"
	"github.com/edgard/relaybot/internal/text"
)

const (
	historyCommandLimit = 10
	telegramMaxRunes    = 4096
)

// NewHistoryHandler returns a handler for the /chathistory command.
func NewHistoryHandler(deps HandlerDeps) bot.HandlerFunc {
	return historyHandler{deps}.Handle
}

// historyHandler lists the latest stored messages of the chat.
type historyHandler struct {
	deps HandlerDeps
}

func formatHistory(header string, messages []database.Message) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	for _, m := range messages {
		fmt.Fprintf(&sb, "[%s] %s: %s\n\n", m.Timestamp.UTC().Format("2006-01-02 15:04"), m.DisplayName(), m.Content)
	}
	return strings.TrimSpace(sb.String())
}

func (h historyHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "chathistory")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	msgs := h.deps.Config.Messages

	messages, err := h.deps.Store.GetRecentMessages(ctx, chatID, historyCommandLimit)
	var reply string
	switch {
	case err != nil:
		log.ErrorContext(ctx, "Failed to fetch chat history", "error", err, "chat_id", chatID)
		reply = msgs.ErrorGeneralMsg
	case len(messages) == 0:
		reply = msgs.HistoryEmptyMsg
	default:
		reply = formatHistory(msgs.HistoryHeaderMsg, messages)
	}

	for _, chunk := range text.Split(reply, telegramMaxRunes) {
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: chunk}); err != nil {
			log.ErrorContext(ctx, "Failed to send chat history", "error", err, "chat_id", chatID)
			return
		}
	}
}
