// Package history provides the persistent per-user conversation context.
package history

import (
	"context"
	"errors"

	"github.com/ashureev/chatrelay/internal/domain"
)

var (
	// ErrDecodeFailed is returned when the backing file exists but is not valid JSON.
	ErrDecodeFailed = errors.New("history: decode failed")
	// ErrAtomicWriteFailed is returned when the snapshot could not be replaced.
	ErrAtomicWriteFailed = errors.New("history: atomic write failed")
)

// Store defines the conversation context persistence contract.
type Store interface {
	// Append adds a timestamped record, trims the oldest records beyond the
	// configured cap and persists the whole table.
	Append(ctx context.Context, key domain.ConversationKey, text string, role domain.Role) (domain.Record, error)

	// Window returns the most recent non-expired records in chronological order.
	// Absent or stale conversations yield an empty slice.
	Window(ctx context.Context, key domain.ConversationKey) ([]domain.Record, error)

	// Records returns every stored record for the conversation.
	Records(ctx context.Context, key domain.ConversationKey) ([]domain.Record, error)

	// Clear drops the conversation and persists the table.
	Clear(ctx context.Context, key domain.ConversationKey) error

	// Stats summarizes the table contents.
	Stats() Stats
}

// Stats summarizes the stored table.
type Stats struct {
	Chats   int `json:"chats"`
	Users   int `json:"users"`
	Records int `json:"records"`
}
