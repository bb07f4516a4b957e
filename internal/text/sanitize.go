// Package text provides reply sanitization and token budgeting for prompt history.
package text

import (
	"errors"
	"strings"
	"unicode"
)

// ErrEmptyText is returned when there is nothing left after sanitization.
var ErrEmptyText = errors.New("empty text")

// normalizeLineWhitespace collapses runs of whitespace in a line into one space and
// trims the line.
func normalizeLineWhitespace(line string) string {
	var sb strings.Builder
	var space bool

	for _, r := range line {
		if unicode.IsSpace(r) {
			if !space {
				sb.WriteRune(' ')
				space = true
			}
			continue
		}
		sb.WriteRune(r)
		space = false
	}

	return strings.TrimSpace(sb.String())
}

// Sanitize cleans model output before it is sent to a chat:
//
//  1. strips echoed "[timestamp] NAME:" and "@name:" speaker prefixes
//  2. normalizes line endings to LF
//  3. removes invisible Unicode and control characters and normalizes odd spaces
//  4. collapses whitespace within lines and limits blank lines to one
//
// It returns ErrEmptyText when the input is blank or becomes blank.
func Sanitize(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrEmptyText
	}

	s := metadataPrefixRegex.ReplaceAllString(input, "")
	s = speakerPrefixRegex.ReplaceAllString(s, "")

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = unicodeReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = normalizeLineWhitespace(lines[i])
	}

	s = strings.Join(lines, "\n")
	s = multipleNewlinesRegex.ReplaceAllString(s, "\n\n")

	result := strings.TrimSpace(s)
	if result == "" {
		return "", ErrEmptyText
	}
	return result, nil
}

// Split breaks s into chunks of at most maxRunes runes, preferring to cut at a
// paragraph break, then a line break, then a space.
func Split(s string, maxRunes int) []string {
	if maxRunes <= 0 {
		return []string{s}
	}

	var chunks []string
	runes := []rune(s)
	for len(runes) > maxRunes {
		cut := lastBreak(runes[:maxRunes])
		chunk := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastBreak(window []rune) int {
	s := string(window)
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(s, sep); i > 0 {
			return len([]rune(s[:i])) + len([]rune(sep))
		}
	}
	return len(window)
}
