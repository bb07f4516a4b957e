package handlers

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/edgard/relaybot/internal/batcher"
	"github.com/edgard/relaybot/internal/config"
	"github.com/edgard/relaybot/internal/database"
)

// Enqueuer accepts inbound messages for batching.
type Enqueuer interface {
	Enqueue(msg batcher.Message) bool
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Store   database.Store
	Batcher Enqueuer
	// Rand returns a number in [0, 1) for reply sampling. Nil uses math/rand/v2.
	Rand func() float64
}

// fillTemplate replaces {name}-style placeholders in a configured message.
func fillTemplate(msg string, vars map[string]string) string {
	for k, v := range vars {
		msg = strings.ReplaceAll(msg, "{"+k+"}", v)
	}
	return msg
}

func countVars(n int) map[string]string {
	return map[string]string{"count": strconv.Itoa(n)}
}
