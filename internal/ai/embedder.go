package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/relaybot/internal/resilience"
)

// ErrNoEmbedding is returned when the endpoint answered without vectors.
var ErrNoEmbedding = errors.New("no embedding returned")

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderConfig configures the OpenAI-compatible embeddings endpoint.
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Retry      resilience.RetryConfig
	HTTPClient *http.Client
}

// OpenAIEmbedder implements Embedder with go-openai.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	retry  resilience.RetryConfig
}

// NewEmbedder creates an embedder.
func NewEmbedder(cfg EmbedderConfig, log *slog.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	retryCfg := cfg.Retry
	retryCfg.RetryIf = IsRetryable
	retryCfg.Logger = log.With("component", "embedder")

	return &OpenAIEmbedder{
		client: newOpenAISDK(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient),
		model:  openai.EmbeddingModel(cfg.Model),
		retry:  retryCfg,
	}, nil
}

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyPrompt
	}

	resp, err := resilience.Retry(ctx, e.retry, func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: e.model,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNoEmbedding
	}
	return resp.Data[0].Embedding, nil
}
