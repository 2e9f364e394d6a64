// Package domain contains core domain types for the chat relay.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ConversationKey identifies one user's conversation inside one chat.
type ConversationKey struct {
	ChatID int64
	UserID int64
}

// NewConversationKey builds a key from chat and user IDs.
func NewConversationKey(chatID, userID int64) ConversationKey {
	return ConversationKey{ChatID: chatID, UserID: userID}
}

// String returns the "<chat>:<user>" form of the key.
func (k ConversationKey) String() string {
	return strconv.FormatInt(k.ChatID, 10) + ":" + strconv.FormatInt(k.UserID, 10)
}

// ParseConversationKey parses the "<chat>:<user>" form produced by String.
func ParseConversationKey(s string) (ConversationKey, error) {
	chatPart, userPart, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ConversationKey{}, fmt.Errorf("invalid conversation key %q", s)
	}
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return ConversationKey{}, fmt.Errorf("parse chat id %q: %w", chatPart, err)
	}
	userID, err := strconv.ParseInt(userPart, 10, 64)
	if err != nil {
		return ConversationKey{}, fmt.Errorf("parse user id %q: %w", userPart, err)
	}
	return ConversationKey{ChatID: chatID, UserID: userID}, nil
}
