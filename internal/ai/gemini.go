package ai

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/edgard/relaybot/internal/resilience"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
	Retry           resilience.RetryConfig
}

type geminiClient struct {
	client *genai.Client
	model  string
	base   genai.GenerateContentConfig
	retry  resilience.RetryConfig
	log    *slog.Logger
}

// NewGeminiClient creates a Gemini completion client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	base := genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(cfg.MaxOutputTokens), //nolint:gosec // bounded by config validation
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	retryCfg := cfg.Retry
	retryCfg.RetryIf = IsRetryable
	logger := log.With("component", "gemini_client")
	retryCfg.Logger = logger

	logger.Info("Gemini client initialized successfully", "model", cfg.Model)
	return &geminiClient{
		client: gi,
		model:  cfg.Model,
		base:   base,
		retry:  retryCfg,
		log:    logger,
	}, nil
}

// geminiContents maps history and prompt to Gemini contents. Consecutive turns
// with the same role are allowed by the API.
func geminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		var role genai.Role = genai.RoleUser
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(FormatTurn(t), role))
	}
	return append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))
}

func (c *geminiClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	cfg := c.base
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	contents := geminiContents(req)

	c.log.DebugContext(ctx, "Generating reply", "history", len(req.History))
	resp, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return c.client.Models.GenerateContent(ctx, c.model, contents, &cfg)
	})
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := string(resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.WarnContext(ctx, "Gemini request blocked", "reason", reason)
		return "", fmt.Errorf("%w: %s", ErrBlocked, reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	return finish(resp.Text())
}
