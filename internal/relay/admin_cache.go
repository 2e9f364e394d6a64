package relay

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/chatrelay/internal/domain"
)

type adminEntry struct {
	admin   bool
	expires time.Time
}

// AdminCache remembers membership lookups for a fixed TTL. Errors are not
// cached.
type AdminCache struct {
	next Membership
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[domain.ConversationKey]adminEntry
}

// NewAdminCache wraps next. A non-positive ttl returns next unchanged.
func NewAdminCache(next Membership, ttl time.Duration) Membership {
	if ttl <= 0 || next == nil {
		return next
	}
	return &AdminCache{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[domain.ConversationKey]adminEntry),
	}
}

// IsAdmin returns a cached answer when fresh, otherwise asks next.
func (c *AdminCache) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	key := domain.NewConversationKey(chatID, userID)
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.admin, nil
	}

	admin, err := c.next.IsAdmin(ctx, chatID, userID)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.entries[key] = adminEntry{admin: admin, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return admin, nil
}
