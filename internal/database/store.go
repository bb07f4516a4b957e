package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
	maxPageLimit       = 1000
)

// Store defines the database operations used by the bot.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage upserts the chat and sender and inserts the message in one
	// transaction. user is nil for anonymous channel posts. A message that is
	// already stored (same chat and Telegram message id) is left untouched.
	SaveMessage(ctx context.Context, chat ChatGroup, user *User, message *Message) error

	// SaveAIResponse records a reply sent by the bot.
	SaveAIResponse(ctx context.Context, response *AIResponse) error

	// GetRecentMessages returns up to limit of the chat's latest messages, oldest first.
	GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]Message, error)

	// GetRecentHistory returns up to limit entries of the chat's interleaved
	// messages and bot replies, oldest first.
	GetRecentHistory(ctx context.Context, chatID int64, limit int) ([]HistoryEntry, error)

	// CountMessages returns how many messages are stored for the chat.
	CountMessages(ctx context.Context, chatID int64) (int, error)

	// GetMessagesPage returns up to limit messages of the chat with a row id greater
	// than afterID, in id order.
	GetMessagesPage(ctx context.Context, chatID int64, afterID int64, limit int) ([]Message, error)

	// DeleteChatHistory deletes the chat's messages and replies and returns the
	// number of messages removed.
	DeleteChatHistory(ctx context.Context, chatID int64) (int64, error)

	// RunSQLMaintenance performs database maintenance (optimize and VACUUM).
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) SaveMessage(ctx context.Context, chat ChatGroup, user *User, message *Message) error {
	switch {
	case message == nil:
		return errors.New("cannot save nil message")
	case chat.ID == 0:
		return errors.New("chat must have a non-zero id")
	case message.MessageID == 0:
		return errors.New("message must have a non-zero message_id")
	case message.Content == "":
		return errors.New("message must have non-empty content")
	case message.Timestamp.IsZero():
		return errors.New("message must have a non-zero timestamp")
	}

	now := s.now()
	message.ChatID = chat.ID
	message.CreatedAt = now
	message.Timestamp = message.Timestamp.UTC()
	message.UserID = sql.NullInt64{}
	if user != nil && user.ID != 0 {
		message.UserID = sql.NullInt64{Int64: user.ID, Valid: true}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
		}
	}()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO chat_groups (id, type, title, username, created_at, updated_at)
        VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            type       = excluded.type,
            title      = COALESCE(excluded.title, chat_groups.title),
            username   = COALESCE(excluded.username, chat_groups.username),
            updated_at = excluded.updated_at;`,
		chat.ID, chat.Type, chat.Title, chat.Username, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert chat %d: %w", chat.ID, err)
	}

	if message.UserID.Valid {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO users (id, username, first_name, last_name, is_bot, created_at, updated_at)
            VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)
            ON CONFLICT (id) DO UPDATE SET
                username   = COALESCE(excluded.username, users.username),
                first_name = COALESCE(excluded.first_name, users.first_name),
                last_name  = COALESCE(excluded.last_name, users.last_name),
                is_bot     = excluded.is_bot,
                updated_at = excluded.updated_at;`,
			user.ID, user.Username, user.FirstName, user.LastName, user.IsBot, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert user %d: %w", user.ID, err)
		}
	}

	result, err := tx.NamedExecContext(ctx, `
        INSERT INTO messages (chat_id, user_id, message_id, content, timestamp, created_at)
        VALUES (:chat_id, :user_id, :message_id, :content, :timestamp, :created_at)
        ON CONFLICT (chat_id, message_id) DO NOTHING;`, message)
	if err != nil {
		return fmt.Errorf("failed to save message (chat %d, message %d): %w", chat.ID, message.MessageID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		s.logger.DebugContext(ctx, "Message already stored, skipping", "chat_id", chat.ID, "message_id", message.MessageID)
	} else if id, err := result.LastInsertId(); err == nil {
		message.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "Message saved", "chat_id", chat.ID, "message_id", message.MessageID, "row_id", message.ID)
	return nil
}

func (s *sqlxStore) SaveAIResponse(ctx context.Context, response *AIResponse) error {
	if response == nil {
		return errors.New("cannot save nil response")
	}
	if response.ChatID == 0 || response.ResponseText == "" {
		return errors.New("response must have a chat_id and non-empty text")
	}
	response.CreatedAt = s.now()

	result, err := s.db.NamedExecContext(ctx, `
        INSERT INTO ai_responses (chat_id, batch_id, message_id, response_text, created_at)
        VALUES (:chat_id, :batch_id, :message_id, :response_text, :created_at);`, response)
	if err != nil {
		return fmt.Errorf("failed to save response for chat %d: %w", response.ChatID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		response.ID = id
	}
	return nil
}

const selectMessages = `
    SELECT m.id, m.chat_id, m.user_id, m.message_id, m.content, m.timestamp, m.created_at,
           COALESCE(u.username, '')   AS username,
           COALESCE(u.first_name, '') AS first_name
    FROM messages m
    LEFT JOIN users u ON u.id = m.user_id`

func (s *sqlxStore) GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]Message, error) {
	if chatID == 0 {
		return nil, errors.New("chat_id cannot be zero")
	}
	limit = clampLimit(limit, defaultRecentLimit, maxRecentLimit)

	var messages []Message
	err := s.db.SelectContext(ctx, &messages, selectMessages+`
        WHERE m.chat_id = ?
        ORDER BY m.timestamp DESC, m.id DESC
        LIMIT ?;`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages for chat %d: %w", chatID, err)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *sqlxStore) GetRecentHistory(ctx context.Context, chatID int64, limit int) ([]HistoryEntry, error) {
	messages, err := s.GetRecentMessages(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultRecentLimit, maxRecentLimit)

	var responses []AIResponse
	err = s.db.SelectContext(ctx, &responses, `
        SELECT id, chat_id, batch_id, message_id, response_text, created_at
        FROM ai_responses
        WHERE chat_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?;`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent responses for chat %d: %w", chatID, err)
	}

	history := make([]HistoryEntry, 0, len(messages)+len(responses))
	for _, m := range messages {
		history = append(history, HistoryEntry{
			Role:      RoleUser,
			Author:    m.DisplayName(),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	for _, r := range responses {
		history = append(history, HistoryEntry{
			Role:      RoleAssistant,
			Content:   r.ResponseText,
			Timestamp: r.CreatedAt,
		})
	}

	slices.SortStableFunc(history, func(a, b HistoryEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

func (s *sqlxStore) CountMessages(ctx context.Context, chatID int64) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE chat_id = ?;`, chatID); err != nil {
		return 0, fmt.Errorf("failed to count messages for chat %d: %w", chatID, err)
	}
	return count, nil
}

func (s *sqlxStore) GetMessagesPage(ctx context.Context, chatID int64, afterID int64, limit int) ([]Message, error) {
	limit = clampLimit(limit, maxPageLimit, maxPageLimit)

	var messages []Message
	err := s.db.SelectContext(ctx, &messages, selectMessages+`
        WHERE m.chat_id = ? AND m.id > ?
        ORDER BY m.id ASC
        LIMIT ?;`, chatID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to page messages for chat %d after %d: %w", chatID, afterID, err)
	}
	return messages, nil
}

func (s *sqlxStore) DeleteChatHistory(ctx context.Context, chatID int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ai_responses WHERE chat_id = ?;`, chatID); err != nil {
		return 0, fmt.Errorf("failed to delete responses for chat %d: %w", chatID, err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?;`, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages for chat %d: %w", chatID, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted row count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Chat history deleted", "chat_id", chatID, "messages", deleted)
	return deleted, nil
}

func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance")

	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		s.logger.WarnContext(ctx, "PRAGMA optimize failed", "error", err)
	}

	// VACUUM cannot run inside a transaction
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
