package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/chatrelay/internal/domain"
)

// table mirrors the on-disk layout: chat id -> user id -> records.
type table map[string]map[string][]domain.Record

// Options configures a FileStore.
type Options struct {
	// Path is the JSON snapshot file.
	Path string
	// WindowSize caps how many recent records Window returns. Zero means no cap.
	WindowSize int
	// Expiration drops records older than this from Window. Zero disables the age filter.
	Expiration time.Duration
	// MaxRecords caps the stored records per user. Zero keeps everything.
	MaxRecords int
	// Now overrides the clock, mainly for tests.
	Now    func() time.Time
	Logger *slog.Logger
}

// FileStore keeps the whole context table in memory and rewrites a single
// JSON snapshot after every mutation.
type FileStore struct {
	mu     sync.RWMutex
	data   table
	opts   Options
	logger *slog.Logger
}

// NewFileStore loads the snapshot at opts.Path. A missing or empty file
// yields an empty store.
func NewFileStore(opts Options) (*FileStore, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("history file path must be provided")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{
		data:   make(table),
		opts:   opts,
		logger: logger.With("component", "history"),
	}

	found, err := readJSON(opts.Path, &s.data)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.Info("history file not found, starting empty", "path", opts.Path)
		s.data = make(table)
	} else {
		st := s.statsLocked()
		s.logger.Info("history loaded", "path", opts.Path, "chats", st.Chats, "users", st.Users, "records", st.Records)
	}
	return s, nil
}

// Append adds a record for key and persists the table.
func (s *FileStore) Append(_ context.Context, key domain.ConversationKey, text string, role domain.Role) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatKey, userKey := tableKeys(key)
	users, chatExists := s.data[chatKey]
	if !chatExists {
		users = make(map[string][]domain.Record)
		s.data[chatKey] = users
	}
	prev, userExists := users[userKey]
	records := prev

	rec := domain.NewRecord(s.opts.Now(), text, role)
	if n := len(records); n > 0 && records[n-1].Timestamp > rec.Timestamp {
		// Keep timestamps non-decreasing when the wall clock steps back.
		rec.Timestamp = records[n-1].Timestamp
	}
	records = append(records, rec)

	if limit := s.opts.MaxRecords; limit > 0 && len(records) > limit {
		records = append([]domain.Record(nil), records[len(records)-limit:]...)
	}
	users[userKey] = records

	if err := writeJSONAtomic(s.opts.Path, s.data); err != nil {
		// Memory must not hold records the file does not.
		switch {
		case userExists:
			users[userKey] = prev
		case chatExists:
			delete(users, userKey)
		default:
			delete(s.data, chatKey)
		}
		return rec, fmt.Errorf("persist history: %w", err)
	}
	return rec, nil
}

// Window returns up to WindowSize most recent records younger than Expiration.
func (s *FileStore) Window(_ context.Context, key domain.ConversationKey) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.lookupLocked(key)
	if len(records) == 0 {
		return []domain.Record{}, nil
	}

	start := 0
	if n := s.opts.WindowSize; n > 0 && len(records) > n {
		start = len(records) - n
	}

	now := s.opts.Now()
	window := make([]domain.Record, 0, len(records)-start)
	for _, rec := range records[start:] {
		if s.opts.Expiration > 0 && now.Sub(rec.Time()) >= s.opts.Expiration {
			continue
		}
		window = append(window, rec)
	}
	return window, nil
}

// Records returns a copy of every record stored for key.
func (s *FileStore) Records(_ context.Context, key domain.ConversationKey) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.lookupLocked(key)
	return append([]domain.Record{}, records...), nil
}

// Clear removes the conversation for key and persists the table.
func (s *FileStore) Clear(_ context.Context, key domain.ConversationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatKey, userKey := tableKeys(key)
	users, ok := s.data[chatKey]
	if !ok {
		return nil
	}
	removed, ok := users[userKey]
	if !ok {
		return nil
	}
	delete(users, userKey)
	if len(users) == 0 {
		delete(s.data, chatKey)
	}

	if err := writeJSONAtomic(s.opts.Path, s.data); err != nil {
		users[userKey] = removed
		s.data[chatKey] = users
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

// Stats returns chat, user and record counts.
func (s *FileStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return s.opts.Path
}

func (s *FileStore) statsLocked() Stats {
	var st Stats
	for _, users := range s.data {
		st.Chats++
		for _, records := range users {
			st.Users++
			st.Records += len(records)
		}
	}
	return st
}

func (s *FileStore) lookupLocked(key domain.ConversationKey) []domain.Record {
	chatKey, userKey := tableKeys(key)
	users, ok := s.data[chatKey]
	if !ok {
		return nil
	}
	return users[userKey]
}

func tableKeys(key domain.ConversationKey) (string, string) {
	return strconv.FormatInt(key.ChatID, 10), strconv.FormatInt(key.UserID, 10)
}

var _ Store = (*FileStore)(nil)
