package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/relaybot/internal/config"
	"github.com/edgard/relaybot/internal/resilience"
)

// RetryConfigFrom derives the retry policy from the AI section.
func RetryConfigFrom(cfg config.AIConfig) resilience.RetryConfig {
	r := resilience.DefaultRetryConfig()
	r.Attempts = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		r.Delay = cfg.RetryDelay
	}
	return r
}

// NewClient creates the completion client selected by ai.provider.
func NewClient(ctx context.Context, cfg *config.Config, log *slog.Logger) (Client, error) {
	log.Info("Initializing AI client", "provider", cfg.AI.Provider)
	retryCfg := RetryConfigFrom(cfg.AI)

	switch cfg.AI.Provider {
	case "gemini":
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.ModelName,
			Temperature:     cfg.AI.Temperature,
			MaxOutputTokens: cfg.AI.MaxOutputTokens,
			Retry:           retryCfg,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, nil
	case "openai":
		client, err := NewOpenAIClient(OpenAIConfig{
			APIKey:          cfg.OpenAI.APIKey,
			BaseURL:         cfg.OpenAI.BaseURL,
			Model:           cfg.OpenAI.Model,
			Temperature:     cfg.AI.Temperature,
			MaxOutputTokens: cfg.AI.MaxOutputTokens,
			Retry:           retryCfg,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown AI provider specified: %s", cfg.AI.Provider)
	}
}
