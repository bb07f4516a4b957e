// Package config provides configuration loading, validation, and management
// for relaybot. Values come from a YAML file, BOT_* environment variables and
// built-in defaults, in that order of precedence.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
)

// Config defines the application configuration for all components.
type Config struct {
	Logger      LoggerConfig             `mapstructure:"logger"`
	Telegram    TelegramConfig           `mapstructure:"telegram"`
	Batcher     BatcherConfig            `mapstructure:"batcher"`
	AI          AIConfig                 `mapstructure:"ai"`
	Gemini      GeminiConfig             `mapstructure:"gemini"`
	OpenAI      OpenAIConfig             `mapstructure:"openai"`
	Embedding   EmbeddingConfig          `mapstructure:"embedding"`
	VectorStore VectorStoreConfig        `mapstructure:"vector_store"`
	Database    DatabaseConfig           `mapstructure:"database"`
	Scheduler   SchedulerConfig          `mapstructure:"scheduler"`
	HTTP        HTTPConfig               `mapstructure:"http"`
	Events      EventsConfig             `mapstructure:"events"`
	Messages    MessagesConfig           `mapstructure:"messages"`
	Channels    map[string]ChannelConfig `mapstructure:"channels" validate:"dive"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot credentials. BotInfo is filled at startup from getMe.
type TelegramConfig struct {
	Token       string       `mapstructure:"token"         validate:"required"`
	AdminUserID int64        `mapstructure:"admin_user_id" validate:"required,gt=0"`
	BotInfo     *models.User `mapstructure:"-"`
}

// BatcherConfig tunes inbound message batching.
type BatcherConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"           validate:"min=1s,max=10m"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"      validate:"min=1s,max=1h"`
	MaxDedupRecords int           `mapstructure:"max_dedup_records" validate:"min=0"`
	MinBatchSize    int           `mapstructure:"min_batch_size"    validate:"min=1"`
	MaxBatchSize    int           `mapstructure:"max_batch_size"    validate:"gtefield=MinBatchSize"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"   validate:"min=1s,max=10m"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"      validate:"min=1s,max=2m"`
}

// AIConfig selects the completion provider and shapes the request.
type AIConfig struct {
	Provider           string        `mapstructure:"provider"             validate:"oneof=gemini openai"`
	Instruction        string        `mapstructure:"instruction"          validate:"required"`
	Temperature        float32       `mapstructure:"temperature"          validate:"min=0,max=2"`
	MaxOutputTokens    int           `mapstructure:"max_output_tokens"    validate:"min=0"`
	HistoryLimit       int           `mapstructure:"history_limit"        validate:"min=0,max=100"`
	MaxContextTokens   int           `mapstructure:"max_context_tokens"   validate:"min=500,max=200000"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"      validate:"min=1s,max=10m"`
	MaxRetries         uint          `mapstructure:"max_retries"          validate:"min=1,max=10"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures" validate:"min=1"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout" validate:"min=1s"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	APIKey    string `mapstructure:"api_key"`
	ModelName string `mapstructure:"model_name"`
}

// OpenAIConfig holds settings for any OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	Model   string `mapstructure:"model"`
}

// EmbeddingConfig holds the embedding endpoint used by vector memory.
type EmbeddingConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	Model   string `mapstructure:"model"`
}

// VectorStoreConfig configures the pgvector-backed conversation memory.
type VectorStoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"     validate:"required_if=Enabled true"`
	Table   string `mapstructure:"table"   validate:"required,sqlident"`
	TopK    int    `mapstructure:"top_k"   validate:"min=1,max=50"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig describes a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// EventsConfig configures batch event publishing. No brokers disables it.
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers" validate:"dive,hostname_port"`
	Topic   string   `mapstructure:"topic"   validate:"required_with=Brokers"`
}

// MessagesConfig holds every user-facing text the bot sends.
type MessagesConfig struct {
	Welcome              string `mapstructure:"welcome"                validate:"required"`
	Help                 string `mapstructure:"help"                   validate:"required"`
	ErrorUnauthorizedMsg string `mapstructure:"error_unauthorized_msg" validate:"required"`
	ErrorGeneralMsg      string `mapstructure:"error_general_msg"      validate:"required"`
	FallbackReply        string `mapstructure:"fallback_reply"         validate:"required"`
	EmptyReply           string `mapstructure:"empty_reply"            validate:"required"`
	HistoryEmptyMsg      string `mapstructure:"history_empty_msg"      validate:"required"`
	HistoryHeaderMsg     string `mapstructure:"history_header_msg"     validate:"required"`
	ScanStartMsg         string `mapstructure:"scan_start_msg"         validate:"required"`
	ScanProgressMsg      string `mapstructure:"scan_progress_msg"      validate:"required"`
	ScanDoneMsg          string `mapstructure:"scan_done_msg"          validate:"required"`
	ResetConfirmMsg      string `mapstructure:"reset_confirm_msg"      validate:"required"`
	ResetErrorMsg        string `mapstructure:"reset_error_msg"        validate:"required"`
	ResetTimeoutMsg      string `mapstructure:"reset_timeout_msg"      validate:"required"`
}

// ChannelConfig overrides reply behaviour for one chat. Keys of Config.Channels are
// the chat's @username or its numeric id.
type ChannelConfig struct {
	AllowReplies     *bool    `mapstructure:"allow_replies"`
	ReplyProbability *float64 `mapstructure:"reply_probability" validate:"omitempty,min=0,max=1"`
	CustomPrompt     string   `mapstructure:"custom_prompt"`
}

// ChannelPolicy is a ChannelConfig with defaults applied.
type ChannelPolicy struct {
	AllowReplies     bool
	ReplyProbability float64
	CustomPrompt     string
}

// Channel resolves the reply policy for a chat, looking it up by @username first
// and numeric id second. Chats without an entry get replies with probability 1.
func (c *Config) Channel(chatID int64, username string) ChannelPolicy {
	policy := ChannelPolicy{AllowReplies: true, ReplyProbability: 1}

	cc, ok := ChannelConfig{}, false
	if username != "" {
		// viper lowercases map keys
		cc, ok = c.Channels["@"+strings.ToLower(strings.TrimPrefix(username, "@"))]
	}
	if !ok {
		cc, ok = c.Channels[strconv.FormatInt(chatID, 10)]
	}
	if !ok {
		return policy
	}

	if cc.AllowReplies != nil {
		policy.AllowReplies = *cc.AllowReplies
	}
	if cc.ReplyProbability != nil {
		policy.ReplyProbability = *cc.ReplyProbability
	}
	policy.CustomPrompt = cc.CustomPrompt
	return policy
}
