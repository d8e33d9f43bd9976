// Package httpapi exposes the REST surface: room creation, the room browser,
// and health. Realtime lobby traffic goes over the websocket endpoint instead.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/matchcore/lobby-server/internal/directory"
	"github.com/matchcore/lobby-server/internal/hub"
	"github.com/matchcore/lobby-server/internal/protocol"
	"github.com/matchcore/lobby-server/internal/session"
)

type api struct {
	hub    *hub.Hub
	dir    directory.Directory
	logger *zap.Logger
}

type createRoomRequest struct {
	protocol.Settings
	Password string `json:"password,omitempty"`
}

type createRoomResponse struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// createRoom handles POST /rooms. A non-empty password marks the room private
// regardless of the is_private flag in the body.
func (a *api) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	var hash string
	if req.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "hashing password"})
			return
		}
		hash = string(h)
		req.IsPrivate = true
	}

	reply := make(chan *session.Session, 1)
	select {
	case a.hub.Inbox() <- hub.CreateSession{Settings: req.Settings, PasswordHash: hash, Reply: reply}:
	case <-r.Context().Done():
		return
	}
	s := <-reply
	if s == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not create room"})
		return
	}

	writeJSON(w, http.StatusCreated, createRoomResponse{SessionID: s.ID(), Code: s.Code()})
}

// listRooms handles GET /rooms with optional filter query params.
func (a *api) listRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := directory.Filter{
		GameMode:       q.Get("game_mode"),
		HideFull:       q.Get("hide_full") == "true",
		HideInProgress: q.Get("hide_in_progress") == "true",
		HidePrivate:    q.Get("hide_private") == "true",
	}

	rooms, err := a.dir.Query(r.Context(), f)
	if err != nil {
		a.logger.Error("querying room directory", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "directory unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
