package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlxStore {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { CloseDB(db) })

	store, ok := NewStore(db, nil).(*sqlxStore)
	if !ok {
		t.Fatal("NewStore() did not return *sqlxStore")
	}
	return store
}

// fixedClock makes the store stamp rows at base, base+1s, base+2s, ...
func fixedClock(base time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

var (
	testGroup = ChatGroup{ID: -1001, Type: "supergroup", Title: "Test Group"}
	alice     = &User{ID: 10, Username: "alice", FirstName: "Alice"}
	bob       = &User{ID: 11, FirstName: "Bob"}
)

func saveText(t *testing.T, s *sqlxStore, chat ChatGroup, user *User, id int, text string, at time.Time) {
	t.Helper()
	msg := &Message{MessageID: id, Content: text, Timestamp: at}
	if err := s.SaveMessage(context.Background(), chat, user, msg); err != nil {
		t.Fatalf("SaveMessage(%d) error = %v", id, err)
	}
}

func TestSaveAndGetRecentMessages(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	saveText(t, s, testGroup, alice, 1, "first", baseTime)
	saveText(t, s, testGroup, bob, 2, "second", baseTime.Add(time.Second))
	saveText(t, s, testGroup, nil, 3, "channel post", baseTime.Add(2*time.Second))
	// Redelivery of an already stored message is ignored.
	saveText(t, s, testGroup, alice, 1, "first (again)", baseTime.Add(3*time.Second))

	msgs, err := s.GetRecentMessages(ctx, testGroup.ID, 10)
	if err != nil {
		t.Fatalf("GetRecentMessages() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}

	want := []struct {
		content string
		author  string
	}{
		{"first", "@alice"},
		{"second", "Bob"},
		{"channel post", "channel"},
	}
	for i, w := range want {
		if msgs[i].Content != w.content || msgs[i].DisplayName() != w.author {
			t.Errorf("msgs[%d] = %q by %q, want %q by %q", i, msgs[i].Content, msgs[i].DisplayName(), w.content, w.author)
		}
	}
	if !msgs[0].Timestamp.Equal(baseTime) {
		t.Errorf("timestamp = %v, want %v", msgs[0].Timestamp, baseTime)
	}

	latest, err := s.GetRecentMessages(ctx, testGroup.ID, 2)
	if err != nil {
		t.Fatalf("GetRecentMessages(limit=2) error = %v", err)
	}
	if len(latest) != 2 || latest[0].Content != "second" || latest[1].Content != "channel post" {
		t.Errorf("GetRecentMessages(limit=2) = %+v", latest)
	}
}

func TestSaveMessageUpdatesUserAndChat(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	saveText(t, s, testGroup, &User{ID: 20, FirstName: "Carol"}, 1, "hi", baseTime)
	renamed := testGroup
	renamed.Title = "Renamed"
	saveText(t, s, renamed, &User{ID: 20, Username: "carol"}, 2, "hello", baseTime.Add(time.Second))

	var title string
	if err := s.db.GetContext(ctx, &title, `SELECT title FROM chat_groups WHERE id = ?`, testGroup.ID); err != nil {
		t.Fatalf("select title: %v", err)
	}
	if title != "Renamed" {
		t.Errorf("chat title = %q, want Renamed", title)
	}

	var user User
	err := s.db.GetContext(ctx, &user, `
        SELECT id, COALESCE(username, '') AS username, COALESCE(first_name, '') AS first_name,
               COALESCE(last_name, '') AS last_name, is_bot, created_at, updated_at
        FROM users WHERE id = 20`)
	if err != nil {
		t.Fatalf("select user: %v", err)
	}
	if user.Username != "carol" || user.FirstName != "Carol" {
		t.Errorf("user = %+v, want username carol and first name kept", user)
	}
}

func TestSaveMessageValidation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	tests := []struct {
		name string
		chat ChatGroup
		msg  *Message
	}{
		{"nil message", testGroup, nil},
		{"zero chat", ChatGroup{}, &Message{MessageID: 1, Content: "x", Timestamp: baseTime}},
		{"zero message id", testGroup, &Message{Content: "x", Timestamp: baseTime}},
		{"empty content", testGroup, &Message{MessageID: 1, Timestamp: baseTime}},
		{"zero timestamp", testGroup, &Message{MessageID: 1, Content: "x"}},
	}

	for _, tt := range tests {
		if err := s.SaveMessage(context.Background(), tt.chat, alice, tt.msg); err == nil {
			t.Errorf("%s: SaveMessage() succeeded, want error", tt.name)
		}
	}
}

func TestGetRecentHistoryInterleavesReplies(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.now = fixedClock(baseTime)
	ctx := context.Background()

	saveText(t, s, testGroup, alice, 1, "question", baseTime)
	saveText(t, s, testGroup, bob, 2, "me too", baseTime.Add(1500*time.Millisecond))
	// Third clock tick: the reply is stamped baseTime+3s.
	resp := &AIResponse{ChatID: testGroup.ID, BatchID: "b1", ResponseText: "answer"}
	if err := s.SaveAIResponse(ctx, resp); err != nil {
		t.Fatalf("SaveAIResponse() error = %v", err)
	}
	saveText(t, s, testGroup, alice, 3, "thanks", baseTime.Add(10*time.Second))

	history, err := s.GetRecentHistory(ctx, testGroup.ID, 10)
	if err != nil {
		t.Fatalf("GetRecentHistory() error = %v", err)
	}

	want := []struct {
		role    Role
		content string
	}{
		{RoleUser, "question"},
		{RoleUser, "me too"},
		{RoleAssistant, "answer"},
		{RoleUser, "thanks"},
	}
	if len(history) != len(want) {
		t.Fatalf("got %d history entries, want %d: %+v", len(history), len(want), history)
	}
	for i, w := range want {
		if history[i].Role != w.role || history[i].Content != w.content {
			t.Errorf("history[%d] = %s %q, want %s %q", i, history[i].Role, history[i].Content, w.role, w.content)
		}
	}
	if history[0].Author != "@alice" {
		t.Errorf("history[0].Author = %q, want @alice", history[0].Author)
	}

	tail, err := s.GetRecentHistory(ctx, testGroup.ID, 2)
	if err != nil {
		t.Fatalf("GetRecentHistory(limit=2) error = %v", err)
	}
	if len(tail) != 2 || tail[0].Content != "answer" || tail[1].Content != "thanks" {
		t.Errorf("GetRecentHistory(limit=2) = %+v", tail)
	}
}

func TestCountAndPageMessages(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	other := ChatGroup{ID: -2002, Type: "group"}
	for i := 1; i <= 25; i++ {
		saveText(t, s, testGroup, alice, i, fmt.Sprintf("msg %d", i), baseTime.Add(time.Duration(i)*time.Second))
	}
	saveText(t, s, other, bob, 1, "elsewhere", baseTime)

	count, err := s.CountMessages(ctx, testGroup.ID)
	if err != nil {
		t.Fatalf("CountMessages() error = %v", err)
	}
	if count != 25 {
		t.Errorf("CountMessages() = %d, want 25", count)
	}

	var seen int
	var afterID int64
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("paging did not terminate")
		}
		page, err := s.GetMessagesPage(ctx, testGroup.ID, afterID, 10)
		if err != nil {
			t.Fatalf("GetMessagesPage() error = %v", err)
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			if m.ChatID != testGroup.ID {
				t.Fatalf("page contains message of chat %d", m.ChatID)
			}
			if m.ID <= afterID {
				t.Fatalf("page not in id order: %d after %d", m.ID, afterID)
			}
			afterID = m.ID
		}
		seen += len(page)
	}
	if seen != 25 {
		t.Errorf("paged through %d messages, want 25", seen)
	}
}

func TestDeleteChatHistory(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	other := ChatGroup{ID: -2002, Type: "group"}
	saveText(t, s, testGroup, alice, 1, "a", baseTime)
	saveText(t, s, testGroup, bob, 2, "b", baseTime)
	saveText(t, s, other, bob, 1, "c", baseTime)
	if err := s.SaveAIResponse(ctx, &AIResponse{ChatID: testGroup.ID, BatchID: "b", ResponseText: "r"}); err != nil {
		t.Fatalf("SaveAIResponse() error = %v", err)
	}

	deleted, err := s.DeleteChatHistory(ctx, testGroup.ID)
	if err != nil {
		t.Fatalf("DeleteChatHistory() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	history, err := s.GetRecentHistory(ctx, testGroup.ID, 10)
	if err != nil {
		t.Fatalf("GetRecentHistory() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history after delete = %+v", history)
	}
	if n, _ := s.CountMessages(ctx, other.ID); n != 1 {
		t.Errorf("other chat has %d messages, want 1", n)
	}
}

func TestRunSQLMaintenance(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	saveText(t, s, testGroup, alice, 1, "a", baseTime)

	if err := s.RunSQLMaintenance(context.Background()); err != nil {
		t.Errorf("RunSQLMaintenance() error = %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.RunSQLMaintenance(ctx); err == nil {
		t.Error("RunSQLMaintenance() with cancelled context succeeded")
	}
}

func TestBuildDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"bot.db", "file:bot.db?" + sqlitePragmas},
		{"file:/tmp/bot.db", "file:/tmp/bot.db?" + sqlitePragmas},
		{"file:bot.db?mode=ro", "file:bot.db?mode=ro"},
	}
	for _, tt := range tests {
		if got := buildDSN(tt.in); got != tt.want {
			t.Errorf("buildDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
