// Package ai provides a provider-neutral completion client with Gemini and
// OpenAI-compatible backends, plus text embeddings for conversation memory.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/edgard/relaybot/internal/text"
)

var (
	// ErrEmptyResponse is returned when the model produced no usable text.
	ErrEmptyResponse = errors.New("empty response from AI")
	// ErrBlocked is returned when the provider refused the prompt.
	ErrBlocked = errors.New("prompt blocked by provider")
	// ErrEmptyPrompt is returned for a request without prompt text.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
)

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of conversation history.
type Turn struct {
	Role      Role
	Author    string
	Content   string
	Timestamp time.Time
}

// Request is a single completion call.
type Request struct {
	System  string
	History []Turn
	Prompt  string
}

// Client generates a reply for a request.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f(ctx, req).
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// FormatTurn renders a history entry the way user messages are shown to the
// model. Assistant turns are sent verbatim.
func FormatTurn(t Turn) string {
	if t.Role == RoleAssistant {
		return t.Content
	}
	author := t.Author
	if author == "" {
		author = "user"
	}
	return fmt.Sprintf("[%s] %s: %s", t.Timestamp.UTC().Format(time.DateTime), author, t.Content)
}

// finish sanitizes raw model output.
func finish(raw string) (string, error) {
	clean, err := text.Sanitize(raw)
	if err != nil {
		if errors.Is(err, text.ErrEmptyText) {
			return "", ErrEmptyResponse
		}
		return "", err
	}
	return clean, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// statusCode extracts the HTTP status of a provider error, or 0.
func statusCode(err error) int {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) {
		return oaAPI.HTTPStatusCode
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) {
		return oaReq.HTTPStatusCode
	}
	var gAPI genai.APIError
	if errors.As(err, &gAPI) {
		return gAPI.Code
	}
	var gAPIPtr *genai.APIError
	if errors.As(err, &gAPIPtr) {
		return gAPIPtr.Code
	}
	return 0
}

// IsRetryable reports whether err is a transient provider failure: rate
// limiting or a server-side error.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := statusCode(err)
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
