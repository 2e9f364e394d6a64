package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/chatrelay/internal/completion"
	"github.com/ashureev/chatrelay/internal/events"
	"github.com/ashureev/chatrelay/internal/history"
	"github.com/ashureev/chatrelay/internal/quota"
	"github.com/ashureev/chatrelay/internal/store"
)

const (
	testChat = int64(-100123)
	testUser = int64(42)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts [][]completion.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []completion.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, messages)
	return f.reply, f.err
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []Outgoing
	failAt int // 1-based send index that fails, 0 means never
}

func (f *fakeSender) Send(_ context.Context, msg Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.sent)+1 == f.failAt {
		return errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeMembership struct {
	admin bool
	err   error
	calls int
}

func (f *fakeMembership) IsAdmin(context.Context, int64, int64) (bool, error) {
	f.calls++
	return f.admin, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type fixture struct {
	relay      *Relay
	tracker    *quota.Tracker
	history    *history.FileStore
	completer  *fakeCompleter
	sender     *fakeSender
	membership *fakeMembership
	publisher  *recordingPublisher
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()

	hist, err := history.NewFileStore(history.Options{
		Path:       filepath.Join(t.TempDir(), "chat_logs.json"),
		WindowSize: 10,
		Expiration: 30 * time.Minute,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	f := &fixture{
		tracker:    quota.NewTracker(store.NewMemory(), limit, quietLogger()),
		history:    hist,
		completer:  &fakeCompleter{reply: "Try printing the loop variable."},
		sender:     &fakeSender{},
		membership: &fakeMembership{},
		publisher:  &recordingPublisher{},
	}
	r, err := New(Config{
		AllowedChats: []int64{testChat},
		BotUsername:  "helperbot",
		SystemPrompt: "Help students, do not hand out full solutions.",
	}, Deps{
		Quota:      f.tracker,
		Membership: f.membership,
		History:    hist,
		Completer:  f.completer,
		Sender:     f.sender,
		Publisher:  f.publisher,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.relay = r
	return f
}

func mention(text string) Inbound {
	return Inbound{
		UpdateID:  1,
		MessageID: 77,
		ChatID:    testChat,
		ChatType:  ChatSupergroup,
		UserID:    testUser,
		Username:  "student",
		Text:      text,
	}
}
