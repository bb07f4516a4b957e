package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Memory is what the reply pipeline needs from conversation memory.
type Memory interface {
	Remember(ctx context.Context, chatID int64, kind Kind, content string) error
	Recall(ctx context.Context, chatID int64, query string) ([]string, error)
}

// Service embeds text and stores or searches it.
type Service struct {
	store    Store
	embedder Embedder
	topK     int
	log      *slog.Logger
}

// NewService creates a memory service returning at most topK matches per recall.
func NewService(store Store, embedder Embedder, topK int, log *slog.Logger) *Service {
	if topK <= 0 {
		topK = 5
	}
	return &Service{store: store, embedder: embedder, topK: topK, log: log.With("component", "memory")}
}

// Remember embeds content and stores it for chatID. Blank content is ignored.
func (s *Service) Remember(ctx context.Context, chatID int64, kind Kind, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed %s: %w", kind, err)
	}
	return s.store.Add(ctx, Record{
		ID:        uuid.New(),
		ChatID:    chatID,
		Kind:      kind,
		Content:   content,
		Embedding: vec,
	})
}

// Recall returns the contents of the stored records closest to query, most
// similar first. Exact repeats of the query are skipped.
func (s *Service) Recall(ctx context.Context, chatID int64, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := s.store.Search(ctx, chatID, vec, s.topK)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Content == query {
			continue
		}
		out = append(out, m.Content)
	}
	s.log.DebugContext(ctx, "Recalled memories", "chat_id", chatID, "matches", len(matches), "kept", len(out))
	return out, nil
}

// Close releases the underlying store.
func (s *Service) Close() {
	s.store.Close()
}

// Noop is used when vector memory is disabled.
type Noop struct{}

// Remember does nothing.
func (Noop) Remember(context.Context, int64, Kind, string) error { return nil }

// Recall returns no memories.
func (Noop) Recall(context.Context, int64, string) ([]string, error) { return nil, nil }
