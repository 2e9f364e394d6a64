// Package relay runs one inbound chat message through the gating,
// completion and reply pipeline.
package relay

import (
	"context"

	"github.com/ashureev/chatrelay/internal/addressing"
	"github.com/ashureev/chatrelay/internal/domain"
	"github.com/ashureev/chatrelay/internal/events"
	"github.com/ashureev/chatrelay/internal/quota"
)

// Chat types as reported by the transport.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
)

// Inbound is a transport-neutral incoming message.
type Inbound struct {
	UpdateID  int
	MessageID int
	ChatID    int64
	ChatType  string
	UserID    int64
	Username  string
	Text      string
	IsCommand bool
	Reply     *addressing.Reply
}

// Key returns the conversation the message belongs to.
func (in Inbound) Key() domain.ConversationKey {
	return domain.NewConversationKey(in.ChatID, in.UserID)
}

// Outgoing is one message to send back.
type Outgoing struct {
	ChatID           int64
	ReplyToMessageID int
	Text             string
}

// Sender delivers outgoing messages.
type Sender interface {
	Send(ctx context.Context, msg Outgoing) error
}

// Membership reports whether a user may bypass the quota in a chat.
type Membership interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// Publisher receives one event per handled message.
type Publisher interface {
	Publish(ev events.Event)
}

// QuotaGate records message attempts against the daily limit.
type QuotaGate interface {
	RecordAndCheck(ctx context.Context, key domain.ConversationKey) (quota.Decision, error)
}
