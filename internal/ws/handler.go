// Package ws adapts websocket connections to session inbox/outbox traffic.
// The connection is the authenticated sender identity: every inbound message
// is stamped with the actor ID bound to the socket at accept time, so a
// payload can never speak for another participant.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matchcore/lobby-server/internal/hub"
	"github.com/matchcore/lobby-server/internal/protocol"
	"github.com/matchcore/lobby-server/internal/registry"
	"github.com/matchcore/lobby-server/internal/session"
)

const (
	// registerTimeout bounds the wait for the initial Register frame.
	registerTimeout = 10 * time.Second
	// readTimeout bounds a single read; lobby clients are otherwise idle for
	// long stretches.
	readTimeout = 5 * time.Minute
	// writeTimeout bounds a single outbound frame.
	writeTimeout = 3 * time.Second
)

// Handler upgrades GET /ws?code=XXX requests into session participants.
func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetSession{Code: code, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if err := s.CheckPassword(r.URL.Query().Get("password")); err != nil {
			http.Error(w, "incorrect password", http.StatusForbidden)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		actorID := uuid.NewString()
		log := logger.With(zap.String("code", code), zap.String("actor_id", actorID))

		// The first frame must be Register; it carries the display name.
		reg, err := readRegister(r.Context(), conn)
		if err != nil {
			writeRejection(r.Context(), conn, protocol.CodeMalformed, "first message must be Register")
			return
		}

		out := make(chan []byte, 16)
		joinReply := make(chan error, 1)
		s.Inbox() <- session.Join{
			ActorID:     actorID,
			DisplayName: reg.DisplayName,
			Outbox:      out,
			Reply:       joinReply,
		}
		if err := <-joinReply; err != nil {
			writeRejection(r.Context(), conn, rejectCode(err), err.Error())
			return
		}
		defer func() { s.Inbox() <- session.Disconnect{ActorID: actorID} }()

		log.Debug("participant connected")

		// Writer: pump session outbox frames until the session closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for data := range out {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					return
				}
			}
			// Session closed the outbox (kick, shutdown, slow consumer).
			_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		}()

		// Reader: decode frames and forward them stamped with actorID.
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read ended", zap.Error(err))
				}
				return
			}

			msg, err := protocol.DecodeClient(data)
			if err != nil {
				writeRejection(r.Context(), conn, protocol.CodeMalformed, err.Error())
				continue
			}

			s.Inbox() <- session.FromClient{SenderID: actorID, Msg: msg}
		}
	}
}

func readRegister(parent context.Context, conn *websocket.Conn) (protocol.Register, error) {
	ctx, cancel := context.WithTimeout(parent, registerTimeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return protocol.Register{}, err
	}
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		return protocol.Register{}, err
	}
	reg, ok := msg.(protocol.Register)
	if !ok {
		return protocol.Register{}, protocol.ErrMalformed
	}
	return reg, nil
}

func writeRejection(parent context.Context, conn *websocket.Conn, code, message string) {
	ctx, cancel := context.WithTimeout(parent, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, protocol.Encode(protocol.Rejection{
		Type:    protocol.TypeRejection,
		Code:    code,
		Message: message,
	}))
}

func rejectCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrSessionFull):
		return protocol.CodeSessionFull
	case errors.Is(err, registry.ErrDuplicateActor):
		return protocol.CodeDuplicateActor
	default:
		return protocol.CodeMalformed
	}
}
