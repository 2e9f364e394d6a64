package store

import (
	"context"
	"sync"

	"github.com/ashureev/chatrelay/internal/domain"
)

// MemoryStore keeps counters in process memory. Counters are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[int64]map[int64]int
}

// NewMemory creates an empty in-memory counter repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{counters: make(map[int64]map[int64]int)}
}

// Increment adds one to the counter for key.
func (m *MemoryStore) Increment(_ context.Context, key domain.ConversationKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.counters[key.ChatID]
	if !ok {
		users = make(map[int64]int)
		m.counters[key.ChatID] = users
	}
	users[key.UserID]++
	return users[key.UserID], nil
}

// Get returns the counter for key.
func (m *MemoryStore) Get(_ context.Context, key domain.ConversationKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key.ChatID][key.UserID], nil
}

// ResetAll drops every counter.
func (m *MemoryStore) ResetAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, users := range m.counters {
		n += int64(len(users))
	}
	m.counters = make(map[int64]map[int64]int)
	return n, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var _ CounterRepository = (*MemoryStore)(nil)
