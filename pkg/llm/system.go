package llm

import (
	"strings"

	"mbk-chat-go/internal/conversation"
)

// splitSystem separates system messages from the rest of the thread, joining their text.
func splitSystem(thread []conversation.Message) (string, []conversation.Message) {
	var system []string
	rest := make([]conversation.Message, 0, len(thread))
	for _, m := range thread {
		if m.Role == conversation.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, text)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// foldSystem is the fallback for backends without a system role: the system text is
// prepended to the first user turn (or becomes the first user turn) instead of being dropped.
func foldSystem(thread []conversation.Message) []conversation.Message {
	system, rest := splitSystem(thread)
	if system == "" {
		return rest
	}
	for i, m := range rest {
		if m.Role == conversation.RoleUser {
			folded := make([]conversation.Message, len(rest))
			copy(folded, rest)
			folded[i] = conversation.NewMessage(conversation.RoleUser, system+"\n\n"+m.Text())
			return folded
		}
	}
	return append([]conversation.Message{conversation.NewMessage(conversation.RoleUser, system)}, rest...)
}

// latestUserPrompt returns the text of the last user message in the thread.
func latestUserPrompt(thread []conversation.Message) string {
	for i := len(thread) - 1; i >= 0; i-- {
		if thread[i].Role == conversation.RoleUser {
			return thread[i].Text()
		}
	}
	return ""
}
