// Package memory keeps embedded chat messages and replies in a pgvector table
// and recalls the ones most similar to a new batch.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Kind tells user messages and bot replies apart.
type Kind string

const (
	KindMessage Kind = "message"
	KindReply   Kind = "reply"
)

// Record is one embedded piece of conversation.
type Record struct {
	ID        uuid.UUID
	ChatID    int64
	Kind      Kind
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// Match is a search hit, most similar first.
type Match struct {
	ID        uuid.UUID
	Kind      Kind
	Content   string
	Score     float64
	CreatedAt time.Time
}

// Store persists and searches records.
type Store interface {
	Add(ctx context.Context, r Record) error
	Search(ctx context.Context, chatID int64, embedding []float32, topK int) ([]Match, error)
	Close()
}

// PGStore implements Store on PostgreSQL with the pgvector extension.
type PGStore struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

// parseTableIdentifier splits "table" or "schema.table".
func parseTableIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// formatVector converts a float32 slice to pgvector text format [x,y,z,...].
func formatVector(embedding []float32) string {
	strs := make([]string, len(embedding))
	for i, v := range embedding {
		strs[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(strs, ",") + "]"
}

// NewPGStore connects to url and makes sure the table exists.
func NewPGStore(ctx context.Context, url, table string) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PGStore{pool: pool, table: parseTableIdentifier(table)}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func schemaStatements(table pgx.Identifier) []string {
	name := table.Sanitize()
	index := pgx.Identifier{"idx_" + strings.Join(table, "_") + "_chat"}.Sanitize()
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, name),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (chat_id)`, index, name),
	}
}

func (s *PGStore) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.table) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare memory table: %w", err)
		}
	}
	return nil
}

// Add inserts a record. A zero ID is replaced by a random one.
func (s *PGStore) Add(ctx context.Context, r Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, chat_id, kind, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5::vector, $6)
		ON CONFLICT (id) DO NOTHING`,
		s.table.Sanitize(),
	)
	if _, err := s.pool.Exec(ctx, query, r.ID, r.ChatID, string(r.Kind), r.Content, formatVector(r.Embedding), r.CreatedAt); err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func searchQuery(table pgx.Identifier) string {
	// <=> is cosine distance; 1 - distance is the similarity.
	return fmt.Sprintf(`
		SELECT id, kind, content, 1 - (embedding <=> $2::vector) AS score, created_at
		FROM %s
		WHERE chat_id = $1
		ORDER BY embedding <=> $2::vector
		LIMIT $3`,
		table.Sanitize(),
	)
}

// Search returns the topK records of chatID closest to embedding.
func (s *PGStore) Search(ctx context.Context, chatID int64, embedding []float32, topK int) ([]Match, error) {
	rows, err := s.pool.Query(ctx, searchQuery(s.table), chatID, formatVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var kind string
		if err := rows.Scan(&m.ID, &kind, &m.Content, &m.Score, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.Kind = Kind(kind)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return matches, nil
}

// Ping verifies the connection.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
