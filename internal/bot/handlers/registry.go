package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

func command(pattern string, h tgbot.HandlerFunc, mw ...tgbot.Middleware) RegisteredHandler {
	return RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     pattern,
		Handler:     h,
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  mw,
	}
}

// RegisterAllCommands initializes and returns a map of all available bot commands.
// Plain messages are not listed here: they go to NewMessageHandler, installed as
// the bot's default handler.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	adminOnly := AdminOnly(deps)

	return map[string]RegisteredHandler{
		"/start":       command("start", NewStartHandler(deps)),
		"/help":        command("help", NewHelpHandler(deps)),
		"/chathistory": command("chathistory", NewHistoryHandler(deps)),
		"/scanchat":    command("scanchat", NewScanHandler(deps), adminOnly),
		"/mrl_reset":   command("mrl_reset", NewResetHandler(deps), adminOnly),
	}
}
