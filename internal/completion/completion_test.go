package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestServer(t *testing.T, status int, body string, seen *capturedRequest, auth *string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	t.Parallel()

	var seen capturedRequest
	var auth string
	srv := newTestServer(t, http.StatusOK, `{
		"id": "cmpl-1",
		"object": "chat.completion",
		"model": "test-model",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "  pong  "}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
	}`, &seen, &auth)

	client := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "test-model"}, quietLogger())
	got, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "ping"},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "pong" {
		t.Fatalf("reply = %q, want %q", got, "pong")
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", auth)
	}
	if seen.Model != "test-model" {
		t.Fatalf("model = %q", seen.Model)
	}
	if len(seen.Messages) != 2 || seen.Messages[0].Role != "system" || seen.Messages[1].Content != "ping" {
		t.Fatalf("unexpected messages: %+v", seen.Messages)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, http.StatusOK, `{"id":"x","choices":[]}`, nil, nil)
	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/v1"}, quietLogger())

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestCompleteAPIError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, http.StatusUnauthorized,
		`{"error":{"message":"bad key","type":"invalid_request_error"}}`, nil, nil)
	client := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/v1"}, quietLogger())

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrEmptyCompletion) {
		t.Fatal("API error must not be reported as empty completion")
	}
}

func TestDefaultModel(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{APIKey: "k"}, nil)
	if client.Model() != DefaultModel {
		t.Fatalf("Model = %q, want %q", client.Model(), DefaultModel)
	}
}
