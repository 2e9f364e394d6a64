package events

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// WebSocketHandler streams hub events to WebSocket clients. Each client first
// receives the retained backlog, then live events.
type WebSocketHandler struct {
	hub            *Hub
	originPatterns []string
	logger         *slog.Logger
}

// NewWebSocketHandler creates a handler. An empty originPatterns list
// accepts any origin.
func NewWebSocketHandler(hub *Hub, originPatterns []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &WebSocketHandler{
		hub:            hub,
		originPatterns: originPatterns,
		logger:         logger.With("component", "events_ws"),
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	// Clients only listen; CloseRead handles their control frames and
	// cancels ctx once they go away.
	ctx := ws.CloseRead(r.Context())
	h.logger.Info("event stream opened", "ip", r.RemoteAddr)

	for _, ev := range h.hub.Recent() {
		if err := h.write(ctx, ws, ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("event stream closed", "ip", r.RemoteAddr)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(ctx, ws, ev); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, ev Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, ev); err != nil {
		if ctx.Err() == nil {
			h.logger.Debug("websocket write error", "error", err)
		}
		return err
	}
	return nil
}
