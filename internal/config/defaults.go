package config

import "time"

const (
	defaultInstruction = `You are a regular member of this Telegram group. You read the latest messages
and reply once, briefly and naturally, in the language the group is using.
Never mention that you are a bot or that you received several messages at once.`
)

// defaults is applied to viper before reading the config file. Every key that may
// be set from the environment must appear here so that AutomaticEnv can bind it.
var defaults = map[string]any{
	"logger.level": "info",
	"logger.json":  false,

	"telegram.token":         "",
	"telegram.admin_user_id": 0,

	"batcher.timeout":           20 * time.Second,
	"batcher.dedup_window":      60 * time.Second,
	"batcher.max_dedup_records": 10000,
	"batcher.min_batch_size":    1,
	"batcher.max_batch_size":    6,
	"batcher.process_timeout":   2 * time.Minute,
	"batcher.send_timeout":      10 * time.Second,

	"ai.provider":             "gemini",
	"ai.instruction":          defaultInstruction,
	"ai.temperature":          1.0,
	"ai.max_output_tokens":    1024,
	"ai.history_limit":        20,
	"ai.max_context_tokens":   8000,
	"ai.request_timeout":      90 * time.Second,
	"ai.max_retries":          3,
	"ai.retry_delay":          time.Second,
	"ai.breaker_max_failures": 5,
	"ai.breaker_open_timeout": 60 * time.Second,

	"gemini.api_key":    "",
	"gemini.model_name": "gemini-2.0-flash",

	"openai.api_key":  "",
	"openai.base_url": "https://api.openai.com/v1",
	"openai.model":    "gpt-4o-mini",

	"embedding.api_key":  "",
	"embedding.base_url": "https://api.openai.com/v1",
	"embedding.model":    "text-embedding-3-small",

	"vector_store.enabled": false,
	"vector_store.url":     "",
	"vector_store.table":   "memories",
	"vector_store.top_k":   5,

	"database.path": "relaybot.db",

	"scheduler.tasks": map[string]any{
		"sql_maintenance": map[string]any{"enabled": true, "schedule": "0 0 4 * * *"},
		"dedup_sweep":     map[string]any{"enabled": true, "schedule": "*/30 * * * * *"},
	},

	"http.addr": "",

	"events.brokers": []string{},
	"events.topic":   "relaybot.batches",

	"messages.welcome":                "👋 Hi {name}! Just talk in the group, I read along and join in every now and then.",
	"messages.help":                   "Commands:\n/start - greeting\n/help - this message\n/chathistory - last messages stored for this chat\n/scanchat - count stored messages (admin only)\n/mrl_reset - clear this chat's history (admin only)",
	"messages.error_unauthorized_msg": "🚫 You are not authorized to use this command.",
	"messages.error_general_msg":      "❌ An error occurred. Please try again later.",
	"messages.fallback_reply":         "I'm sorry, I encountered an error while processing your request.",
	"messages.empty_reply":            "I'm sorry, I couldn't generate a response.",
	"messages.history_empty_msg":      "No chat history found.",
	"messages.history_header_msg":     "Recent chat history:",
	"messages.scan_start_msg":         "🔍 Scanning stored messages for this chat...",
	"messages.scan_progress_msg":      "Scanned {count} messages so far...",
	"messages.scan_done_msg":          "✅ Scan complete. {count} messages stored for this chat.",
	"messages.reset_confirm_msg":      "🔄 Chat history has been cleared.",
	"messages.reset_error_msg":        "❌ Failed to clear chat history.",
	"messages.reset_timeout_msg":      "⏱️ Clearing chat history timed out. Please try again.",
}
