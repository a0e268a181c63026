package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/multiplayer-sessions/internal/hub"
	"github.com/DoyleJ11/multiplayer-sessions/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log.Named("http")))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/sessions", ListSessions(h))
	r.Get("/ws", ws.Handler(h, log))
	return r
}
