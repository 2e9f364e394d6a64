package relay

import (
	"strings"

	"github.com/ashureev/chatrelay/internal/addressing"
	"github.com/ashureev/chatrelay/internal/completion"
	"github.com/ashureev/chatrelay/internal/domain"
)

// BuildPrompt assembles the completion request: the system instruction,
// prior turns from window, the quoted bot text when it is not already the
// last assistant turn, and finally the current query.
func BuildPrompt(systemPrompt string, window []domain.Record, res addressing.Resolution) []completion.Message {
	messages := make([]completion.Message, 0, len(window)+3)
	if s := strings.TrimSpace(systemPrompt); s != "" {
		messages = append(messages, completion.Message{Role: completion.RoleSystem, Content: s})
	}

	lastAssistant := ""
	for _, rec := range window {
		role := completion.RoleUser
		if rec.EffectiveRole() == domain.RoleAssistant {
			role = completion.RoleAssistant
			lastAssistant = strings.TrimSpace(rec.Message)
		}
		messages = append(messages, completion.Message{Role: role, Content: rec.Message})
	}

	if res.Quote != "" && res.Quote != res.Query && res.Quote != lastAssistant {
		messages = append(messages, completion.Message{Role: completion.RoleAssistant, Content: res.Quote})
	}

	messages = append(messages, completion.Message{Role: completion.RoleUser, Content: UserTurn(res)})
	return messages
}

// UserTurn is the text recorded and sent for the user's side of a turn.
func UserTurn(res addressing.Resolution) string {
	if res.Note == "" {
		return res.Query
	}
	return res.Note + "\n" + res.Query
}
