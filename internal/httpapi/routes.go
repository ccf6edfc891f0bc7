package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/arjenga/tower-backend/internal/hub"
	"github.com/arjenga/tower-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger, wsWriteTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log, wsWriteTimeout))
	r.Get("/rooms/{roomID}", RoomState(h))
	return r
}
