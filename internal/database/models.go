package database

import (
	"database/sql"
	"time"
)

// User is a Telegram account that has written in a tracked chat.
type User struct {
	ID        int64     `db:"id"`
	Username  string    `db:"username"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	IsBot     bool      `db:"is_bot"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ChatGroup is a Telegram chat (group, supergroup, channel or private chat).
type ChatGroup struct {
	ID        int64     `db:"id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Username  string    `db:"username"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Message is an inbound chat message. UserID is null for anonymous channel posts.
// Username and FirstName are filled from users on reads.
type Message struct {
	ID        int64         `db:"id"`
	ChatID    int64         `db:"chat_id"`
	UserID    sql.NullInt64 `db:"user_id"`
	MessageID int           `db:"message_id"`
	Content   string        `db:"content"`
	Timestamp time.Time     `db:"timestamp"`
	CreatedAt time.Time     `db:"created_at"`

	Username  string `db:"username"`
	FirstName string `db:"first_name"`
}

// AIResponse is a reply the bot sent for a processed batch. MessageID is the
// Telegram id of the last message of that batch.
type AIResponse struct {
	ID           int64         `db:"id"`
	ChatID       int64         `db:"chat_id"`
	BatchID      string        `db:"batch_id"`
	MessageID    sql.NullInt64 `db:"message_id"`
	ResponseText string        `db:"response_text"`
	CreatedAt    time.Time     `db:"created_at"`
}

// Role distinguishes chat members from the bot in conversation history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is one line of a chat's interleaved message and reply history.
type HistoryEntry struct {
	Role      Role      `db:"role"`
	Author    string    `db:"author"`
	Content   string    `db:"content"`
	Timestamp time.Time `db:"timestamp"`
}

// DisplayName returns the best human-readable name for the message author.
func (m Message) DisplayName() string {
	switch {
	case m.Username != "":
		return "@" + m.Username
	case m.FirstName != "":
		return m.FirstName
	case m.UserID.Valid:
		return "user"
	default:
		return "channel"
	}
}
