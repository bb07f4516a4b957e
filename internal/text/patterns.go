package text

import (
	"regexp"
	"strings"
)

var (
	// controlCharsRegex matches ASCII control characters except tab, LF and CR.
	controlCharsRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

	// multipleNewlinesRegex matches runs of three or more newlines.
	multipleNewlinesRegex = regexp.MustCompile(`\n{3,}`)

	// metadataPrefixRegex matches the "[2025-03-06 22:30:11] @user:" and RFC 3339
	// stamped prefixes models sometimes echo back from the prompt history.
	metadataPrefixRegex = regexp.MustCompile(`^\s*\[\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?\]\s+[^:\n]*:\s*`)

	// speakerPrefixRegex matches a leading "@name:" or "assistant:" speaker label.
	speakerPrefixRegex = regexp.MustCompile(`^\s*(?:@[A-Za-z0-9_]{1,32}|assistant|bot)\s*:\s*`)

	unicodeReplacer = strings.NewReplacer(
		// invisible format characters
		"\u2060", "",
		"\uFEFF", "",
		"\u00AD", "",
		"\u200E", "",
		"\u200F", "",
		"\u2061", "",
		"\u2062", "",
		"\u2063", "",
		"\u2064", "",

		// separators and odd spaces
		"\u2028", "\n",
		"\u2029", "\n\n",
		"\u200B", " ",
		"\u200C", " ",
		"\u205F", " ",
		"\u2009", " ",
		"\u200A", " ",
		"\u202F", " ",
		"\u3000", " ",
		"\u00A0", " ",
	)
)
