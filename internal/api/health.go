package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	quota  QuotaReader
	poller Liveness
}

// NewHealthHandler creates a new health handler. poller may be nil.
func NewHealthHandler(quota QuotaReader, poller Liveness) *HealthHandler {
	return &HealthHandler{quota: quota, poller: poller}
}

// Health reports quota backend reachability and update loop liveness.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	statusCode := http.StatusOK

	if err := h.quota.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		checks["quota_store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["quota_store"] = "ok"
	}

	if h.poller != nil {
		if h.poller.Running() {
			checks["poller"] = "ok"
		} else {
			checks["poller"] = "stopped"
			statusCode = http.StatusServiceUnavailable
		}
	}

	status := "healthy"
	if statusCode != http.StatusOK {
		status = "degraded"
	}
	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
