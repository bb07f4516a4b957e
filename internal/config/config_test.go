package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
telegram:
  token: "123456:ABC"
  admin_user_id: 42
gemini:
  api_key: "gemini-key"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Telegram.Token != "123456:ABC" || cfg.Telegram.AdminUserID != 42 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Batcher.Timeout != 20*time.Second {
		t.Errorf("batcher.timeout = %v, want 20s", cfg.Batcher.Timeout)
	}
	if cfg.Batcher.DedupWindow != time.Minute {
		t.Errorf("batcher.dedup_window = %v, want 1m", cfg.Batcher.DedupWindow)
	}
	if cfg.Batcher.MinBatchSize != 1 || cfg.Batcher.MaxBatchSize != 6 {
		t.Errorf("batch size bounds = [%d,%d], want [1,6]", cfg.Batcher.MinBatchSize, cfg.Batcher.MaxBatchSize)
	}
	if cfg.AI.Provider != "gemini" {
		t.Errorf("ai.provider = %q, want gemini", cfg.AI.Provider)
	}
	if cfg.Messages.FallbackReply == "" {
		t.Error("messages.fallback_reply has no default")
	}

	tasks := cfg.Scheduler.Tasks
	for _, name := range []string{"sql_maintenance", "dedup_sweep"} {
		task, ok := tasks[name]
		if !ok || !task.Enabled || task.Schedule == "" {
			t.Errorf("scheduler.tasks[%s] = %+v, ok=%v", name, task, ok)
		}
	}
}

func TestLoadConfigFileOverrides(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
batcher:
  timeout: 5s
  max_batch_size: 3
events:
  brokers: ["localhost:9092"]
  topic: batches
channels:
  "@NewsRoom":
    allow_replies: true
    reply_probability: 0.5
    custom_prompt: "You are a sarcastic news commentator."
  "-100200":
    allow_replies: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Batcher.Timeout != 5*time.Second || cfg.Batcher.MaxBatchSize != 3 {
		t.Errorf("batcher = %+v", cfg.Batcher)
	}
	if cfg.Batcher.DedupWindow != time.Minute {
		t.Errorf("unset batcher.dedup_window lost its default: %v", cfg.Batcher.DedupWindow)
	}
	if len(cfg.Events.Brokers) != 1 || cfg.Events.Brokers[0] != "localhost:9092" {
		t.Errorf("events.brokers = %v", cfg.Events.Brokers)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("channels = %v", cfg.Channels)
	}

	news := cfg.Channel(-1, "NewsRoom")
	if !news.AllowReplies || news.ReplyProbability != 0.5 || !strings.Contains(news.CustomPrompt, "sarcastic") {
		t.Errorf("Channel(@NewsRoom) = %+v", news)
	}
	muted := cfg.Channel(-100200, "")
	if muted.AllowReplies {
		t.Errorf("Channel(-100200) = %+v, want replies disabled", muted)
	}
	if muted.ReplyProbability != 1 {
		t.Errorf("Channel(-100200).ReplyProbability = %v, want default 1", muted.ReplyProbability)
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("BOT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("BOT_TELEGRAM_ADMIN_USER_ID", "7")
	t.Setenv("BOT_AI_PROVIDER", "openai")
	t.Setenv("BOT_OPENAI_API_KEY", "sk-test")
	t.Setenv("BOT_BATCHER_TIMEOUT", "30s")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Telegram.Token != "env-token" || cfg.Telegram.AdminUserID != 7 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.AI.Provider != "openai" || cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("ai provider = %q, openai key = %q", cfg.AI.Provider, cfg.OpenAI.APIKey)
	}
	if cfg.Batcher.Timeout != 30*time.Second {
		t.Errorf("batcher.timeout = %v, want 30s", cfg.Batcher.Timeout)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantMsg string
	}{
		{
			name:    "max batch below min",
			extra:   "batcher:\n  min_batch_size: 4\n  max_batch_size: 2\n",
			wantMsg: "MaxBatchSize",
		},
		{
			name:    "openai without key",
			extra:   "ai:\n  provider: openai\n",
			wantMsg: "openai.api_key",
		},
		{
			name:    "unknown provider",
			extra:   "ai:\n  provider: llama\n",
			wantMsg: "Provider",
		},
		{
			name:    "vector store without url",
			extra:   "vector_store:\n  enabled: true\nembedding:\n  api_key: k\n",
			wantMsg: "URL",
		},
		{
			name:    "vector store without embedding key",
			extra:   "vector_store:\n  enabled: true\n  url: postgres://localhost/db\n",
			wantMsg: "embedding.api_key",
		},
		{
			name:    "bad table name",
			extra:   "vector_store:\n  table: \"memories; drop\"\n",
			wantMsg: "Table",
		},
		{
			name:    "reply probability out of range",
			extra:   "channels:\n  \"@x\":\n    reply_probability: 1.5\n",
			wantMsg: "ReplyProbability",
		},
		{
			name:    "enabled task without schedule",
			extra:   "scheduler:\n  tasks:\n    custom:\n      enabled: true\n",
			wantMsg: "Schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, minimalYAML+tt.extra))
			if err == nil {
				t.Fatal("LoadConfig() succeeded, want validation error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadConfigMissingCredentials(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "logger:\n  level: debug\n"))
	if err == nil {
		t.Fatal("LoadConfig() without telegram token succeeded")
	}
	if !strings.Contains(err.Error(), "Token") {
		t.Errorf("error %q does not mention Token", err)
	}
}

func TestChannelDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	policy := cfg.Channel(1, "someone")
	if !policy.AllowReplies || policy.ReplyProbability != 1 || policy.CustomPrompt != "" {
		t.Errorf("Channel() on empty config = %+v", policy)
	}
}
