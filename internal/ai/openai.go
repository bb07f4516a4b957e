package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/relaybot/internal/resilience"
)

// OpenAIConfig configures any OpenAI-compatible chat completion endpoint
// (OpenAI, Groq, local gateways).
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	Retry           resilience.RetryConfig
	HTTPClient      *http.Client
}

type openAIClient struct {
	client          *openai.Client
	model           string
	temperature     float32
	maxOutputTokens int
	retry           resilience.RetryConfig
	log             *slog.Logger
}

func newOpenAISDK(apiKey, baseURL string, httpClient *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

// NewOpenAIClient creates an OpenAI-compatible completion client.
func NewOpenAIClient(cfg OpenAIConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	logger := log.With("component", "openai_client")
	retryCfg := cfg.Retry
	retryCfg.RetryIf = IsRetryable
	retryCfg.Logger = logger

	logger.Info("OpenAI client initialized successfully", "model", cfg.Model, "base_url", cfg.BaseURL)
	return &openAIClient{
		client:          newOpenAISDK(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient),
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		retry:           retryCfg,
		log:             logger,
	}, nil
}

func openAIMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, t := range req.History {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: FormatTurn(t)})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
}

func (c *openAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    openAIMessages(req),
		Temperature: c.temperature,
		MaxTokens:   c.maxOutputTokens,
	}

	c.log.DebugContext(ctx, "Generating reply", "history", len(req.History))
	resp, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, chatReq)
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("%w: content filter", ErrBlocked)
	}

	return finish(resp.Choices[0].Message.Content)
}
