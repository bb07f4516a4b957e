// Package pipeline turns a flushed batch into a reply: it persists the batch,
// gathers history and related memories, asks the model and records the outcome.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/relaybot/internal/ai"
	"github.com/edgard/relaybot/internal/batcher"
	"github.com/edgard/relaybot/internal/config"
	"github.com/edgard/relaybot/internal/database"
	"github.com/edgard/relaybot/internal/events"
	"github.com/edgard/relaybot/internal/memory"
	"github.com/edgard/relaybot/internal/resilience"
	"github.com/edgard/relaybot/internal/text"
)

// ErrEmptyBatch is returned for a batch without messages.
var ErrEmptyBatch = errors.New("batch has no messages")

// Config shapes the request sent to the model.
type Config struct {
	Instruction      string
	Identity         ai.Identity
	HistoryLimit     int
	MaxContextTokens int
	RequestTimeout   time.Duration
}

// Deps are the collaborators of a Processor. Memory, Events, Policy, Clock and
// Logger are optional.
type Deps struct {
	Store   database.Store
	AI      ai.Client
	Breaker *resilience.CircuitBreaker
	Memory  memory.Memory
	Events  events.Publisher
	Counter text.Counter
	Policy  func(chatID int64, username string) config.ChannelPolicy
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// Processor implements batcher.Processor.
type Processor struct {
	cfg     Config
	store   database.Store
	ai      ai.Client
	breaker *resilience.CircuitBreaker
	memory  memory.Memory
	events  events.Publisher
	window  *text.Window
	policy  func(chatID int64, username string) config.ChannelPolicy
	clock   clockwork.Clock
	log     *slog.Logger
}

var _ batcher.Processor = (*Processor)(nil)

// New creates a Processor.
func New(cfg Config, deps Deps) (*Processor, error) {
	if deps.Store == nil || deps.AI == nil {
		return nil, errors.New("pipeline requires a store and an AI client")
	}
	if deps.Memory == nil {
		deps.Memory = memory.Noop{}
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Policy == nil {
		deps.Policy = func(int64, string) config.ChannelPolicy {
			return config.ChannelPolicy{AllowReplies: true, ReplyProbability: 1}
		}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Breaker == nil {
		deps.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "ai", Logger: deps.Logger})
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = time.Minute
	}

	return &Processor{
		cfg:     cfg,
		store:   deps.Store,
		ai:      deps.AI,
		breaker: deps.Breaker,
		memory:  deps.Memory,
		events:  deps.Events,
		window:  text.NewWindow(cfg.MaxContextTokens, deps.Counter),
		policy:  deps.Policy,
		clock:   deps.Clock,
		log:     deps.Logger.With("component", "pipeline"),
	}, nil
}

// Process generates the reply for batch.
func (p *Processor) Process(ctx context.Context, batch batcher.Batch) (string, error) {
	if len(batch.Messages) == 0 {
		return "", ErrEmptyBatch
	}
	log := p.log.With("chat_id", batch.ChatID, "batch_id", batch.ID)

	// History is read before the batch is stored so it never contains the batch itself.
	history, err := p.store.GetRecentHistory(ctx, batch.ChatID, p.cfg.HistoryLimit)
	if err != nil {
		log.WarnContext(ctx, "Failed to load history, continuing without it", "error", err)
		history = nil
	}

	p.persist(ctx, log, batch)

	memories, err := p.memory.Recall(ctx, batch.ChatID, batch.Text())
	if err != nil {
		log.WarnContext(ctx, "Memory search failed, continuing without it", "error", err)
		memories = nil
	}
	p.remember(ctx, log, batch.ChatID, memory.KindMessage, batchTexts(batch)...)

	req := p.buildRequest(batch, history, memories)
	log.DebugContext(ctx, "Requesting reply", "history", len(req.History), "memories", len(memories))

	var reply string
	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()

		r, err := p.ai.Complete(callCtx, req)
		reply = r
		return err
	})
	if err != nil {
		p.publish(ctx, log, batch, "", err)
		return "", fmt.Errorf("generate reply: %w", err)
	}

	lastID := int64(batch.Messages[len(batch.Messages)-1].ID)
	resp := &database.AIResponse{
		ChatID:       batch.ChatID,
		BatchID:      batch.ID,
		MessageID:    sql.NullInt64{Int64: lastID, Valid: lastID != 0},
		ResponseText: reply,
	}
	if err := p.store.SaveAIResponse(ctx, resp); err != nil {
		log.WarnContext(ctx, "Failed to save reply", "error", err)
	}
	p.remember(ctx, log, batch.ChatID, memory.KindReply, reply)
	p.publish(ctx, log, batch, reply, nil)

	return reply, nil
}

func (p *Processor) buildRequest(batch batcher.Batch, history []database.HistoryEntry, memories []string) ai.Request {
	first := batch.Messages[0]
	instruction := p.cfg.Instruction
	if custom := p.policy(batch.ChatID, first.ChatUsername).CustomPrompt; custom != "" {
		instruction = custom
	}
	system := ai.SystemPrompt(p.cfg.Identity, instruction, memories)

	lines := make([]string, 0, len(batch.Messages))
	for _, m := range batch.Messages {
		lines = append(lines, ai.FormatTurn(ai.Turn{
			Role:      ai.RoleUser,
			Author:    authorName(m.From),
			Content:   m.Text,
			Timestamp: m.Timestamp,
		}))
	}
	prompt := strings.Join(lines, "\n")

	turns := make([]ai.Turn, 0, len(history))
	for _, h := range history {
		role := ai.RoleUser
		if h.Role == database.RoleAssistant {
			role = ai.RoleAssistant
		}
		turns = append(turns, ai.Turn{Role: role, Author: h.Author, Content: h.Content, Timestamp: h.Timestamp})
	}
	budget := p.window.Available(system, prompt)
	turns = text.SelectRecent(p.window, turns, budget, ai.FormatTurn)

	return ai.Request{System: system, History: turns, Prompt: prompt}
}

func (p *Processor) persist(ctx context.Context, log *slog.Logger, batch batcher.Batch) {
	for _, m := range batch.Messages {
		chat := database.ChatGroup{ID: m.ChatID, Type: m.ChatType, Title: m.ChatTitle, Username: m.ChatUsername}
		var user *database.User
		if m.From.ID != 0 {
			user = &database.User{
				ID:        m.From.ID,
				Username:  m.From.Username,
				FirstName: m.From.FirstName,
				LastName:  m.From.LastName,
				IsBot:     m.From.IsBot,
			}
		}
		msg := &database.Message{MessageID: m.ID, Content: m.Text, Timestamp: m.Timestamp}
		if err := p.store.SaveMessage(ctx, chat, user, msg); err != nil {
			log.WarnContext(ctx, "Failed to save message", "message_id", m.ID, "error", err)
		}
	}
}

func (p *Processor) remember(ctx context.Context, log *slog.Logger, chatID int64, kind memory.Kind, texts ...string) {
	for _, t := range texts {
		if err := p.memory.Remember(ctx, chatID, kind, t); err != nil {
			log.WarnContext(ctx, "Failed to store memory", "kind", kind, "error", err)
		}
	}
}

func (p *Processor) publish(ctx context.Context, log *slog.Logger, batch batcher.Batch, reply string, cause error) {
	ids := make([]int, len(batch.Messages))
	for i, m := range batch.Messages {
		ids[i] = m.ID
	}
	ev := events.BatchProcessed{
		BatchID:     batch.ID,
		ChatID:      batch.ChatID,
		MessageIDs:  ids,
		Target:      batch.Target,
		Trigger:     string(batch.Trigger),
		ReplyLength: len([]rune(reply)),
		ProcessedAt: p.clock.Now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := p.events.Publish(ctx, ev); err != nil {
		log.WarnContext(ctx, "Failed to publish batch event", "error", err)
	}
}

func batchTexts(batch batcher.Batch) []string {
	out := make([]string, len(batch.Messages))
	for i, m := range batch.Messages {
		out[i] = m.Text
	}
	return out
}

func authorName(u batcher.User) string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "":
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	case u.ID != 0:
		return "user"
	default:
		return "channel"
	}
}
