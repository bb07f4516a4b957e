package text

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// perEntryOverhead approximates the tokens spent on author labels and role framing.
const perEntryOverhead = 8

// Counter counts tokens in a piece of text.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(text string) int

// Count calls f(text).
func (f CounterFunc) Count(text string) int { return f(text) }

// EstimateTokens is a model-agnostic ballpark: bytes divided by three plus a
// small buffer.
func EstimateTokens(text string) int {
	return len(text)/3 + 5
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewCounter returns a tiktoken counter for encoding (e.g. "cl100k_base"). The BPE
// ranks are fetched on first use; when that fails the estimate is used instead.
//
//nolint:ireturn // either implementation may be returned
func NewCounter(encoding string, log *slog.Logger) Counter {
	if log == nil {
		log = slog.Default()
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		log.Warn("Tokenizer unavailable, falling back to token estimate", "encoding", encoding, "error", err)
		return CounterFunc(EstimateTokens)
	}
	return tiktokenCounter{enc: enc}
}

// Window selects the most recent history that fits a token budget.
type Window struct {
	MaxTokens int
	Counter   Counter
}

// NewWindow creates a window with the given budget. A nil counter uses EstimateTokens.
func NewWindow(maxTokens int, counter Counter) *Window {
	if counter == nil {
		counter = CounterFunc(EstimateTokens)
	}
	return &Window{MaxTokens: maxTokens, Counter: counter}
}

// Available returns the budget left after reserving tokens for the given texts
// (system prompt, current batch).
func (w *Window) Available(reserved ...string) int {
	left := w.MaxTokens
	for _, r := range reserved {
		left -= w.Counter.Count(r)
	}
	return max(left, 0)
}

// SelectRecent returns the longest suffix of items whose texts fit in budget
// tokens, preserving order.
func SelectRecent[T any](w *Window, items []T, budget int, textOf func(T) string) []T {
	if budget <= 0 || len(items) == 0 {
		return nil
	}

	used := 0
	first := len(items)
	for i := len(items) - 1; i >= 0; i-- {
		cost := w.Counter.Count(textOf(items[i])) + perEntryOverhead
		if used+cost > budget {
			break
		}
		used += cost
		first = i
	}
	return items[first:]
}
