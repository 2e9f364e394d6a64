// Package api provides the ops HTTP handlers for the chat relay.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/chatrelay/internal/domain"
	"github.com/ashureev/chatrelay/internal/events"
	"github.com/ashureev/chatrelay/internal/history"
)

// HistoryStore is the context store as seen by the ops API.
type HistoryStore interface {
	Window(ctx context.Context, key domain.ConversationKey) ([]domain.Record, error)
	Records(ctx context.Context, key domain.ConversationKey) ([]domain.Record, error)
	Clear(ctx context.Context, key domain.ConversationKey) error
	Stats() history.Stats
}

// QuotaReader exposes quota counters.
type QuotaReader interface {
	Count(ctx context.Context, key domain.ConversationKey) (int, error)
	Limit() int
	Ping(ctx context.Context) error
}

// EventSource returns recently handled messages.
type EventSource interface {
	Recent() []events.Event
	Stats() events.Stats
}

// Liveness reports whether the update loop is running.
type Liveness interface {
	Running() bool
}

// Handler provides common handler utilities.
type Handler struct {
	history HistoryStore
	quota   QuotaReader
	events  EventSource
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(hist HistoryStore, quota QuotaReader, evs EventSource) *Handler {
	return &Handler{
		history: hist,
		quota:   quota,
		events:  evs,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
