package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/chatrelay/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	busyMaxRetries = 3
	busyBaseDelay  = 50 * time.Millisecond
)

// SQLiteStore implements CounterRepository using SQLite, so counters survive restarts.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// NewSQLite opens (or creates) the counter database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS quota_counters (
		chat_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (chat_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_quota_counters_updated ON quota_counters(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Increment adds one to the counter for key and returns the new value.
// Lock conflicts are retried with exponential backoff.
func (s *SQLiteStore) Increment(ctx context.Context, key domain.ConversationKey) (int, error) {
	var lastErr error
	for i := 0; i < busyMaxRetries; i++ {
		count, err := s.incrementOnce(ctx, key)
		if err == nil {
			return count, nil
		}
		lastErr = err
		if !isConflictError(err) || i == busyMaxRetries-1 {
			break
		}

		delay := busyBaseDelay * time.Duration(1<<i)
		slog.Debug("quota increment hit SQLITE_BUSY, retrying",
			"chat_id", key.ChatID,
			"user_id", key.UserID,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
	return 0, fmt.Errorf("increment counter for %s: %w", key, lastErr)
}

func (s *SQLiteStore) incrementOnce(ctx context.Context, key domain.ConversationKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO quota_counters (chat_id, user_id, count, updated_at)
	VALUES (?, ?, 1, ?)
	ON CONFLICT(chat_id, user_id) DO UPDATE SET
		count = quota_counters.count + 1,
		updated_at = excluded.updated_at
	RETURNING count`

	var count int
	if err := s.db.QueryRowContext(ctx, query, key.ChatID, key.UserID, time.Now().Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("upsert counter: %w", err)
	}
	return count, nil
}

// Get returns the current counter for key.
func (s *SQLiteStore) Get(ctx context.Context, key domain.ConversationKey) (int, error) {
	query := `SELECT count FROM quota_counters WHERE chat_id = ? AND user_id = ?`

	var count int
	err := s.db.QueryRowContext(ctx, query, key.ChatID, key.UserID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan counter row: %w", err)
	}
	return count, nil
}

// ResetAll deletes every counter row.
func (s *SQLiteStore) ResetAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM quota_counters`)
	if err != nil {
		return 0, fmt.Errorf("reset counters: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// isConflictError reports SQLITE_BUSY and "database is locked" errors,
// both of which are worth retrying.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

var _ CounterRepository = (*SQLiteStore)(nil)
