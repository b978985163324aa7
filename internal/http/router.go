package http

import (
	"net/http"

	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/handlers"
	"github.com/SteamVC/SteamVC_Room/backend/signaling-server/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(h *handlers.RoomHandler, wsHandler *handlers.WebSocketHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/api/v1/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/api/v1/status", h.Status)
	r.Get("/api/v1/rooms/{roomId}", h.Get)
	// WebSocketシグナリングエンドポイント
	r.Get("/api/v1/signal/ws", wsHandler.HandleWebSocket)
	r.Handle("/metrics", metrics.Handler())

	return r
}
