package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matchcore/lobby-server/internal/directory"
	"github.com/matchcore/lobby-server/internal/hub"
	"github.com/matchcore/lobby-server/internal/ws"
)

// NewRouter assembles the HTTP surface: REST room management plus the
// websocket lobby endpoint.
func NewRouter(h *hub.Hub, dir directory.Directory, logger *zap.Logger) http.Handler {
	a := &api{hub: h, dir: dir, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.health)
	r.Post("/rooms", a.createRoom)
	r.Get("/rooms", a.listRooms)
	r.Get("/ws", ws.Handler(h, logger))

	return r
}
