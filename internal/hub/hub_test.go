package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matchcore/lobby-server/internal/config"
	"github.com/matchcore/lobby-server/internal/protocol"
	"github.com/matchcore/lobby-server/internal/session"
)

func testCfg() config.LobbyConfig {
	return config.LobbyConfig{
		MinPlayers:         2,
		AbsoluteMaxPlayers: 16,
		DefaultMaxPlayers:  8,
		TeamCount:          2,
		MaxPlayersPerTeam:  8,
		CountdownTicks:     3,
		TickInterval:       time.Second,
	}
}

func newHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, testCfg(), nil, zap.NewNop())
}

func create(t *testing.T, h *Hub, settings protocol.Settings) *session.Session {
	t.Helper()
	reply := make(chan *session.Session, 1)
	h.Inbox() <- CreateSession{Settings: settings, Reply: reply}
	select {
	case s := <-reply:
		require.NotNil(t, s)
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out creating session")
		return nil
	}
}

func TestHub_CreateThenGetSamePointer(t *testing.T) {
	h := newHub(t)
	s1 := create(t, h, protocol.Settings{RoomName: "scrims", MaxPlayers: 8})

	reply := make(chan *session.Session, 1)
	h.Inbox() <- GetSession{Code: s1.Code(), Reply: reply}
	s2 := <-reply

	assert.Same(t, s1, s2)
}

func TestHub_GetUnknownCodeIsNil(t *testing.T) {
	h := newHub(t)
	reply := make(chan *session.Session, 1)
	h.Inbox() <- GetSession{Code: "NOPE42", Reply: reply}
	assert.Nil(t, <-reply)
}

func TestHub_CodesAreUnique(t *testing.T) {
	h := newHub(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		s := create(t, h, protocol.Settings{MaxPlayers: 8})
		require.Len(t, s.Code(), 6)
		assert.False(t, seen[s.Code()], "duplicate code %s", s.Code())
		seen[s.Code()] = true
	}
}

func TestHub_DestroyedSessionRemovesItself(t *testing.T) {
	h := newHub(t)
	s := create(t, h, protocol.Settings{MaxPlayers: 8})
	code := s.Code()

	// Join one player, then leave: the session destroys itself on empty and
	// must disappear from the hub.
	out := make(chan []byte, 16)
	joinReply := make(chan error, 1)
	s.Inbox() <- session.Join{ActorID: "a1", DisplayName: "ada", Outbox: out, Reply: joinReply}
	require.NoError(t, <-joinReply)
	s.Inbox() <- session.Disconnect{ActorID: "a1"}

	require.Eventually(t, func() bool {
		reply := make(chan *session.Session, 1)
		h.Inbox() <- GetSession{Code: code, Reply: reply}
		return <-reply == nil
	}, time.Second, 5*time.Millisecond)
}
