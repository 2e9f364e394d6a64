package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/chatrelay/internal/relay"
)

// Membership answers admin lookups with getChatMember.
type Membership struct {
	client *Client
}

// NewMembership creates a membership lookup.
func NewMembership(client *Client) *Membership {
	return &Membership{client: client}
}

// IsAdmin reports whether the user is the chat creator or an administrator.
func (m *Membership) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	member, err := m.client.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	return member.IsCreator() || member.IsAdministrator(), nil
}

var _ relay.Membership = (*Membership)(nil)
