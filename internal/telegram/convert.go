package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/chatrelay/internal/addressing"
	"github.com/ashureev/chatrelay/internal/relay"
)

// ToInbound converts an update into a relay message. Updates without a
// message, a human sender or a known chat type report false.
func ToInbound(update tgbotapi.Update, botID int64) (relay.Inbound, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return relay.Inbound{}, false
	}
	if msg.From.IsBot || !conversational(msg.Chat.Type) {
		return relay.Inbound{}, false
	}

	in := relay.Inbound{
		UpdateID:  update.UpdateID,
		MessageID: msg.MessageID,
		ChatID:    msg.Chat.ID,
		ChatType:  msg.Chat.Type,
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		Text:      msg.Text,
		IsCommand: msg.IsCommand(),
	}

	if parent := msg.ReplyToMessage; parent != nil {
		reply := &addressing.Reply{Text: messageText(parent)}
		if parent.From != nil {
			reply.FromBot = parent.From.ID == botID
			reply.AuthorUsername = parent.From.UserName
		}
		in.Reply = reply
	}
	return in, true
}

// conversational reports whether chatType has users the bot can answer.
// Channels only carry posts.
func conversational(chatType string) bool {
	switch chatType {
	case relay.ChatPrivate, relay.ChatGroup, relay.ChatSupergroup:
		return true
	}
	return false
}

func messageText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
