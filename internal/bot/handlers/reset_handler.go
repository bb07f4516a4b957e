package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const resetTimeout = 30 * time.Second

// NewResetHandler returns a handler for the /mrl_reset command.
func NewResetHandler(deps HandlerDeps) bot.HandlerFunc {
	return resetHandler{deps}.Handle
}

type resetHandler struct {
	deps HandlerDeps
}

func (h resetHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "reset")
	if update.Message == nil {
		log.ErrorContext(ctx, "Reset handler called without message", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Admin requested chat history reset", "chat_id", chatID)

	timeoutCtx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()

	deleted, err := h.deps.Store.DeleteChatHistory(timeoutCtx, chatID)

	reply := h.deps.Config.Messages.ResetConfirmMsg
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		log.WarnContext(ctx, "Reset operation timed out or was cancelled", "chat_id", chatID)
		reply = h.deps.Config.Messages.ResetTimeoutMsg
	case err != nil:
		log.ErrorContext(ctx, "Failed to reset chat history", "error", err, "chat_id", chatID)
		reply = h.deps.Config.Messages.ResetErrorMsg
	default:
		log.InfoContext(ctx, "Chat history deleted", "chat_id", chatID, "messages", deleted)
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: reply}); err != nil {
		log.ErrorContext(ctx, "Failed to send reset reply", "error", err, "chat_id", chatID)
	}
}
