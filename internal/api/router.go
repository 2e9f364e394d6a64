package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/chatrelay/internal/middleware"
)

// RouterDeps groups everything the ops router serves.
type RouterDeps struct {
	Handler *Handler
	Health  *HealthHandler
	Events  http.Handler
	Token   string
}

// NewRouter builds the ops HTTP router. /health is public; /api and /ws
// require the bearer token when one is configured.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	deps.Health.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerToken(deps.Token))
		r.Route("/api", deps.Handler.RegisterRoutes)
		if deps.Events != nil {
			r.Get("/ws/events", deps.Events.ServeHTTP)
		}
	})
	return r
}
