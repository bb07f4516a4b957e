package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	scanPageSize      = 100
	scanProgressEvery = 1000
)

// NewScanHandler returns a handler for the /scanchat command.
func NewScanHandler(deps HandlerDeps) bot.HandlerFunc {
	return scanHandler{deps}.Handle
}

// scanHandler pages through the chat's stored messages, reporting progress.
type scanHandler struct {
	deps HandlerDeps
}

func (h scanHandler) send(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send scan message", "handler", "scanchat", "error", err, "chat_id", chatID)
	}
}

func (h scanHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "scanchat")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	msgs := h.deps.Config.Messages

	h.send(ctx, b, chatID, msgs.ScanStartMsg)

	var afterID int64
	count := 0
	nextProgress := scanProgressEvery
	for {
		page, err := h.deps.Store.GetMessagesPage(ctx, chatID, afterID, scanPageSize)
		if err != nil {
			log.ErrorContext(ctx, "Chat scan failed", "error", err, "chat_id", chatID, "scanned", count)
			h.send(ctx, b, chatID, msgs.ErrorGeneralMsg)
			return
		}

		count += len(page)
		if len(page) > 0 {
			afterID = page[len(page)-1].ID
		}
		for count >= nextProgress {
			h.send(ctx, b, chatID, fillTemplate(msgs.ScanProgressMsg, countVars(nextProgress)))
			nextProgress += scanProgressEvery
		}

		if len(page) < scanPageSize {
			break
		}
	}

	log.InfoContext(ctx, "Chat scan complete", "chat_id", chatID, "messages", count)
	h.send(ctx, b, chatID, fillTemplate(msgs.ScanDoneMsg, countVars(count)))
}
