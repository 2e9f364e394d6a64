package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ashureev/chatrelay/internal/domain"
)

func repositories(t *testing.T) map[string]CounterRepository {
	t.Helper()
	sqliteRepo, err := NewSQLite(filepath.Join(t.TempDir(), "quota.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = sqliteRepo.Close() })
	return map[string]CounterRepository{
		"memory": NewMemory(),
		"sqlite": sqliteRepo,
	}
}

func TestCounterRepositoryIncrementAndGet(t *testing.T) {
	t.Parallel()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := domain.NewConversationKey(-100, 1)
			other := domain.NewConversationKey(-100, 2)

			for want := 1; want <= 3; want++ {
				got, err := repo.Increment(ctx, key)
				if err != nil {
					t.Fatalf("Increment failed: %v", err)
				}
				if got != want {
					t.Fatalf("Increment = %d, want %d", got, want)
				}
			}

			if got, _ := repo.Get(ctx, key); got != 3 {
				t.Fatalf("Get = %d, want 3", got)
			}
			if got, _ := repo.Get(ctx, other); got != 0 {
				t.Fatalf("Get(other) = %d, want 0", got)
			}
			if err := repo.Ping(ctx); err != nil {
				t.Fatalf("Ping failed: %v", err)
			}
		})
	}
}

func TestCounterRepositoryResetAll(t *testing.T) {
	t.Parallel()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, _ = repo.Increment(ctx, domain.NewConversationKey(1, 1))
			_, _ = repo.Increment(ctx, domain.NewConversationKey(1, 2))
			_, _ = repo.Increment(ctx, domain.NewConversationKey(2, 1))

			n, err := repo.ResetAll(ctx)
			if err != nil {
				t.Fatalf("ResetAll failed: %v", err)
			}
			if n != 3 {
				t.Fatalf("ResetAll removed %d counters, want 3", n)
			}
			if got, _ := repo.Get(ctx, domain.NewConversationKey(1, 1)); got != 0 {
				t.Fatalf("expected counter reset, got %d", got)
			}
		})
	}
}

func TestMemoryStoreConcurrentIncrements(t *testing.T) {
	t.Parallel()

	repo := NewMemory()
	key := domain.NewConversationKey(1, 1)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Increment(context.Background(), key)
		}()
	}
	wg.Wait()

	if got, _ := repo.Get(context.Background(), key); got != 50 {
		t.Fatalf("Get = %d, want 50", got)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "quota.db")
	ctx := context.Background()
	key := domain.NewConversationKey(10, 20)

	first, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	_, _ = first.Increment(ctx, key)
	_, _ = first.Increment(ctx, key)
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = second.Close() }()

	if got, _ := second.Get(ctx, key); got != 2 {
		t.Fatalf("Get after reopen = %d, want 2", got)
	}
}

func TestIsConflictError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: errors.New("SQLITE_BUSY: database busy"), want: true},
		{err: errors.New("database is locked (5)"), want: true},
		{err: errors.New("no such table"), want: false},
	}
	for _, tt := range tests {
		if got := isConflictError(tt.err); got != tt.want {
			t.Errorf("isConflictError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
