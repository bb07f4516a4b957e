package text_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/edgard/relaybot/internal/text"
)

func TestSanitizeMetadataRemoval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "No metadata",
			input:    "This is a normal response without metadata.",
			expected: "This is a normal response without metadata.",
		},
		{
			name:     "Timestamp prefix",
			input:    "[2025-03-06T22:30:11+01:00] UID 123456 (@username): This is a response with metadata.",
			expected: "This is a response with metadata.",
		},
		{
			name:     "UTC timestamp with fractional seconds",
			input:    "  [2025-03-06T21:30:11.123Z] BOT:   Response with UTC timestamp.",
			expected: "Response with UTC timestamp.",
		},
		{
			name:     "History style prefix",
			input:    "[2025-03-06 22:30:11] @relay_bot: hi all",
			expected: "hi all",
		},
		{
			name:     "Metadata in the middle is kept",
			input:    "This text has [2025-03-06T22:30:11+01:00] BOT: in the middle.",
			expected: "This text has [2025-03-06T22:30:11+01:00] BOT: in the middle.",
		},
		{
			name:     "Speaker label",
			input:    "@relay_bot: sure, why not",
			expected: "sure, why not",
		},
		{
			name:     "Assistant label",
			input:    "assistant: ok",
			expected: "ok",
		},
		{
			name:     "Multiline after prefix",
			input:    "[2025-03-06T22:30:11+01:00] BOT: First line.\nSecond line.",
			expected: "First line.\nSecond line.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := text.Sanitize(tt.input)
			if err != nil {
				t.Fatalf("Sanitize() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("Sanitize() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizeWhitespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"CRLF", "a\r\nb\rc", "a\nb\nc"},
		{"Collapsed spaces", "too    many \t spaces", "too many spaces"},
		{"Excess blank lines", "para one\n\n\n\n\npara two", "para one\n\npara two"},
		{"Invisible characters", "zero\u200Bwidth\uFEFF and\u00A0nbsp", "zero width and nbsp"},
		{"Control characters", "bell\x07here", "bell here"},
		{"Paragraph separator", "one\u2029two", "one\n\ntwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := text.Sanitize(tt.input)
			if err != nil {
				t.Fatalf("Sanitize() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeEmpty(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "\n\t\n", "\u200B\u200B", "[2025-03-06T22:30:11Z] BOT: "} {
		if _, err := text.Sanitize(input); !errors.Is(err, text.ErrEmptyText) {
			t.Errorf("Sanitize(%q) error = %v, want ErrEmptyText", input, err)
		}
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		max      int
		expected []string
	}{
		{
			name:     "Fits",
			input:    "short reply",
			max:      20,
			expected: []string{"short reply"},
		},
		{
			name:     "Paragraph break preferred",
			input:    "first paragraph\n\nsecond paragraph",
			max:      20,
			expected: []string{"first paragraph", "second paragraph"},
		},
		{
			name:     "Word break",
			input:    "alpha beta gamma delta",
			max:      11,
			expected: []string{"alpha beta", "gamma delta"},
		},
		{
			name:     "Hard cut",
			input:    "abcdefghij",
			max:      4,
			expected: []string{"abcd", "efgh", "ij"},
		},
		{
			name:     "Multibyte",
			input:    "привет мир",
			max:      7,
			expected: []string{"привет", "мир"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := text.Split(tt.input, tt.max)
			if strings.Join(got, "|") != strings.Join(tt.expected, "|") {
				t.Errorf("Split() = %q, want %q", got, tt.expected)
			}
			for _, chunk := range got {
				if n := len([]rune(chunk)); n > tt.max {
					t.Errorf("chunk %q has %d runes, max %d", chunk, n, tt.max)
				}
			}
		})
	}
}
