// Package hub manages the set of live lobby sessions, keyed by join code.
// Like the sessions it owns, the hub is a single-goroutine actor: all map
// mutation happens on its loop.
package hub

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matchcore/lobby-server/internal/balance"
	"github.com/matchcore/lobby-server/internal/config"
	"github.com/matchcore/lobby-server/internal/directory"
	"github.com/matchcore/lobby-server/internal/protocol"
	"github.com/matchcore/lobby-server/internal/session"
)

// Msg is a message on the hub's inbox.
type Msg interface{ isHubMsg() }

// CreateSession creates a new lobby session with a fresh join code.
type CreateSession struct {
	Settings     protocol.Settings
	PasswordHash string
	Reply        chan *session.Session
}

// GetSession looks up a session by join code. Reply receives nil when the
// code is unknown.
type GetSession struct {
	Code  string
	Reply chan *session.Session
}

// RemoveSession drops a session from the map. Destroyed sessions send this
// about themselves.
type RemoveSession struct{ Code string }

// Shutdown stops every session and then the hub.
type Shutdown struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (Shutdown) isHubMsg()      {}

// Hub owns all live sessions.
type Hub struct {
	inbox    chan Msg
	sessions map[string]*session.Session
	cfg      config.LobbyConfig
	dir      *directory.Publisher
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a hub and starts its loop.
func New(parent context.Context, cfg config.LobbyConfig, dir *directory.Publisher, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan Msg, 64),
		sessions: make(map[string]*session.Session),
		cfg:      cfg,
		dir:      dir,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

// Inbox exposes the hub's message channel.
func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- h.create(msg)

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // may be nil

			case RemoveSession:
				delete(h.sessions, msg.Code)

			case Shutdown:
				for _, s := range h.sessions {
					s.Inbox() <- session.Shutdown{}
				}
				clear(h.sessions)
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) create(msg CreateSession) *session.Session {
	code, err := h.freshCode()
	if err != nil {
		h.logger.Error("generating join code", zap.Error(err))
		return nil
	}

	s := session.New(h.ctx, session.Params{
		SessionID:    uuid.NewString(),
		Code:         code,
		Settings:     msg.Settings,
		PasswordHash: msg.PasswordHash,
		Lobby:        h.cfg,
		Policy:       balance.StrictPolicy{MaxPerTeam: h.cfg.MaxPlayersPerTeam},
		Directory:    h.dir,
		Logger:       h.logger,
		OnDestroyed: func(_, code string) {
			// Runs on the session goroutine; route through the inbox.
			select {
			case h.inbox <- RemoveSession{Code: code}:
			case <-h.ctx.Done():
			}
		},
	})
	h.sessions[code] = s
	h.logger.Info("session created",
		zap.String("session_id", s.ID()),
		zap.String("code", code),
		zap.String("room_name", msg.Settings.RoomName),
	)
	return s
}

func (h *Hub) freshCode() (string, error) {
	for {
		code, err := generateCode(6)
		if err != nil {
			return "", err
		}
		if _, taken := h.sessions[code]; !taken {
			return code, nil
		}
	}
}

// generateCode returns a crypto-random join code from an unambiguous
// uppercase alphabet.
func generateCode(length int) (string, error) {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	code := make([]byte, length)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
