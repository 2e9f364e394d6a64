//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/chatrelay/internal/domain"
	"github.com/ashureev/chatrelay/internal/events"
	"github.com/ashureev/chatrelay/internal/history"
	"github.com/ashureev/chatrelay/internal/quota"
	"github.com/ashureev/chatrelay/internal/store"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

type fakeLiveness struct{ running bool }

func (f fakeLiveness) Running() bool { return f.running }

type pingFailRepo struct {
	*store.MemoryStore
}

func (pingFailRepo) Ping(context.Context) error { return errors.New("database is locked") }

type testEnv struct {
	router  http.Handler
	history *history.FileStore
	tracker *quota.Tracker
	hub     *events.Hub
}

func newTestEnv(t *testing.T, token string, repo store.CounterRepository, live Liveness) *testEnv {
	t.Helper()

	hist, err := history.NewFileStore(history.Options{
		Path:       filepath.Join(t.TempDir(), "chat_logs.json"),
		WindowSize: 10,
		Expiration: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	tracker := quota.NewTracker(repo, 10, nil)
	hub := events.NewHub(10, nil)

	router := NewRouter(RouterDeps{
		Handler: NewHandler(hist, tracker, hub),
		Health:  NewHealthHandler(tracker, live),
		Events:  events.NewWebSocketHandler(hub, nil, nil),
		Token:   token,
	})
	return &testEnv{router: router, history: hist, tracker: tracker, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		repo   store.CounterRepository
		live   Liveness
		status int
		want   string
	}{
		{"healthy", store.NewMemory(), fakeLiveness{running: true}, http.StatusOK, "healthy"},
		{"no poller", store.NewMemory(), nil, http.StatusOK, "healthy"},
		{"poller stopped", store.NewMemory(), fakeLiveness{}, http.StatusServiceUnavailable, "degraded"},
		{"store down", pingFailRepo{store.NewMemory()}, fakeLiveness{running: true}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, "secret", tc.repo, tc.live)
			w := env.do(t, http.MethodGet, "/health", "")
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			decode(t, w, &body)
			if body.Status != tc.want {
				t.Fatalf("status field = %q, want %q", body.Status, tc.want)
			}
		})
	}
}

func TestOpsRoutesRequireToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "secret", store.NewMemory(), nil)
	for _, target := range []string{"/api/stats", "/api/events", "/api/conversations/1/2", "/ws/events"} {
		if w := env.do(t, http.MethodGet, target, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status %d, want 401", target, w.Code)
		}
	}
	if w := env.do(t, http.MethodGet, "/api/stats", "secret"); w.Code != http.StatusOK {
		t.Fatalf("stats with token: status %d", w.Code)
	}
}

func TestConversationLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "", store.NewMemory(), nil)
	ctx := context.Background()
	key := domain.NewConversationKey(-100, 42)

	if _, err := env.history.Append(ctx, key, "what is a channel?", domain.RoleUser); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := env.history.Append(ctx, key, "A typed pipe.", domain.RoleAssistant); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := env.tracker.RecordAndCheck(ctx, key); err != nil {
		t.Fatalf("RecordAndCheck failed: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/conversations/-100/42", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var conv struct {
		ChatID  int64           `json:"chat_id"`
		UserID  int64           `json:"user_id"`
		Window  []domain.Record `json:"window"`
		Records []domain.Record `json:"records"`
		Quota   struct {
			Count int `json:"count"`
			Limit int `json:"limit"`
		} `json:"quota"`
	}
	decode(t, w, &conv)
	if conv.ChatID != -100 || conv.UserID != 42 || len(conv.Window) != 2 || len(conv.Records) != 2 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if conv.Quota.Count != 1 || conv.Quota.Limit != 10 {
		t.Fatalf("unexpected quota: %+v", conv.Quota)
	}

	w = env.do(t, http.MethodGet, "/api/stats", "")
	var stats struct {
		History history.Stats `json:"history"`
		Events  events.Stats  `json:"events"`
	}
	decode(t, w, &stats)
	if stats.History.Records != 2 || stats.History.Users != 1 {
		t.Fatalf("unexpected stats: %+v", stats.History)
	}
	if stats.Events.Capacity != 10 || stats.Events.Buffered != 0 {
		t.Fatalf("unexpected event stats: %+v", stats.Events)
	}

	if w := env.do(t, http.MethodDelete, "/api/conversations/-100/42", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/conversations/-100/42", "")
	decode(t, w, &conv)
	if len(conv.Records) != 0 {
		t.Fatalf("records after delete = %d", len(conv.Records))
	}
}

func TestConversationBadIDs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "", store.NewMemory(), nil)
	for _, target := range []string{"/api/conversations/abc/1", "/api/conversations/1/xyz"} {
		if w := env.do(t, http.MethodGet, target, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, w.Code)
		}
	}
}

func TestEventsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "", store.NewMemory(), nil)
	for _, id := range []string{"a", "b", "c"} {
		env.hub.Publish(events.Event{ID: id, Stage: "done"})
	}

	w := env.do(t, http.MethodGet, "/api/events?limit=2", "")
	var body struct {
		Events []events.Event `json:"events"`
		Count  int            `json:"count"`
	}
	decode(t, w, &body)
	if body.Count != 2 || body.Events[0].ID != "b" || body.Events[1].ID != "c" {
		t.Fatalf("unexpected events: %+v", body)
	}
}
