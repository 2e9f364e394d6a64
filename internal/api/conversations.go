package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/chatrelay/internal/domain"
)

// RegisterRoutes registers the ops routes under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.GetStats)
	r.Get("/events", h.GetEvents)
	r.Get("/conversations/{chatID}/{userID}", h.GetConversation)
	r.Delete("/conversations/{chatID}/{userID}", h.DeleteConversation)
}

// GetStats returns context store totals and event hub state.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"history":     h.history.Stats(),
		"quota_limit": h.quota.Limit(),
		"events":      h.events.Stats(),
	})
}

// GetEvents returns the most recent pipeline outcomes, oldest first.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	recent := h.events.Recent()
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(recent) {
		recent = recent[len(recent)-limit:]
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"events": recent,
		"count":  len(recent),
	})
}

// GetConversation returns the live window, the full record list and the
// quota counter for one user in one chat.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	key, ok := conversationKey(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	window, err := h.history.Window(ctx, key)
	if err != nil {
		slog.Error("Failed to read context window", "error", err, "key", key.String())
		Error(w, http.StatusInternalServerError, "history_unavailable")
		return
	}
	records, err := h.history.Records(ctx, key)
	if err != nil {
		slog.Error("Failed to read records", "error", err, "key", key.String())
		Error(w, http.StatusInternalServerError, "history_unavailable")
		return
	}
	count, err := h.quota.Count(ctx, key)
	if err != nil {
		slog.Error("Failed to read quota counter", "error", err, "key", key.String())
		Error(w, http.StatusInternalServerError, "quota_unavailable")
		return
	}
	if window == nil {
		window = []domain.Record{}
	}
	if records == nil {
		records = []domain.Record{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"chat_id": key.ChatID,
		"user_id": key.UserID,
		"window":  window,
		"records": records,
		"quota": map[string]int{
			"count": count,
			"limit": h.quota.Limit(),
		},
	})
}

// DeleteConversation drops the stored context for one user in one chat.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	key, ok := conversationKey(w, r)
	if !ok {
		return
	}
	if err := h.history.Clear(r.Context(), key); err != nil {
		slog.Error("Failed to clear conversation", "error", err, "key", key.String())
		Error(w, http.StatusInternalServerError, "clear_failed")
		return
	}
	slog.Info("Conversation cleared", "chat_id", key.ChatID, "user_id", key.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func conversationKey(w http.ResponseWriter, r *http.Request) (domain.ConversationKey, bool) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid chat id")
		return domain.ConversationKey{}, false
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return domain.ConversationKey{}, false
	}
	return domain.NewConversationKey(chatID, userID), true
}
