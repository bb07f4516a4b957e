package ai

import (
	"fmt"
	"strings"
)

// identityHeader introduces the bot to the model. Expects the bot's display
// name and username.
const identityHeader = `You are %s (@%s), a participant in a Telegram group chat. Messages reach you in small batches: reply once to the whole batch, addressing whoever you think needs an answer.

[CRITICAL] Do NOT include the timestamp or author prefix (e.g., [YYYY-MM-DD HH:MM:SS] @user:) in your replies. Respond only with the message content itself.

`

const memoryHeader = "\n\nRelated context from earlier conversations (may be outdated):\n"

// Identity is the bot's own Telegram identity.
type Identity struct {
	Username  string
	FirstName string
}

// SystemPrompt assembles the system instruction: identity header, persona
// instruction, and any related memories.
func SystemPrompt(id Identity, instruction string, memories []string) string {
	var sb strings.Builder

	if id.Username != "" {
		name := id.FirstName
		if name == "" {
			name = id.Username
		}
		fmt.Fprintf(&sb, identityHeader, name, id.Username)
	}
	sb.WriteString(strings.TrimSpace(instruction))

	if len(memories) > 0 {
		sb.WriteString(memoryHeader)
		for _, m := range memories {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			sb.WriteString("- ")
			sb.WriteString(m)
			sb.WriteByte('\n')
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
