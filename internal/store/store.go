// Package store provides quota counter persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/chatrelay/internal/domain"
)

// CounterRepository persists per-conversation message counters.
type CounterRepository interface {
	// Increment adds one to the counter for key and returns the new value.
	Increment(ctx context.Context, key domain.ConversationKey) (int, error)

	// Get returns the current counter for key, zero when absent.
	Get(ctx context.Context, key domain.ConversationKey) (int, error)

	// ResetAll clears every counter and returns how many were removed.
	ResetAll(ctx context.Context) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
