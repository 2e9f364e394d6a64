// Package quota enforces the per-user daily message limit.
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/chatrelay/internal/domain"
	"github.com/ashureev/chatrelay/internal/store"
)

// Decision is the result of recording one message attempt.
type Decision struct {
	Count    int
	Limit    int
	Accepted bool
}

// Remaining returns how many more messages are allowed, never negative.
func (d Decision) Remaining() int {
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

// Tracker counts messages per conversation against a fixed limit.
type Tracker struct {
	repo   store.CounterRepository
	limit  int
	logger *slog.Logger
}

// NewTracker creates a tracker enforcing limit messages per conversation.
func NewTracker(repo store.CounterRepository, limit int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		repo:   repo,
		limit:  limit,
		logger: logger.With("component", "quota"),
	}
}

// RecordAndCheck increments the counter for key unconditionally and reports
// whether the new count is still within the limit.
func (t *Tracker) RecordAndCheck(ctx context.Context, key domain.ConversationKey) (Decision, error) {
	count, err := t.repo.Increment(ctx, key)
	if err != nil {
		return Decision{Limit: t.limit}, fmt.Errorf("record message: %w", err)
	}
	return Decision{
		Count:    count,
		Limit:    t.limit,
		Accepted: count <= t.limit,
	}, nil
}

// Count returns the current counter for key.
func (t *Tracker) Count(ctx context.Context, key domain.ConversationKey) (int, error) {
	count, err := t.repo.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return count, nil
}

// Limit returns the configured maximum.
func (t *Tracker) Limit() int {
	return t.limit
}

// Reset clears every counter.
func (t *Tracker) Reset(ctx context.Context) error {
	n, err := t.repo.ResetAll(ctx)
	if err != nil {
		return fmt.Errorf("reset counters: %w", err)
	}
	t.logger.Info("quota counters reset", "cleared", n)
	return nil
}

// Ping checks the counter backend.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.repo.Ping(ctx)
}
