package session

import (
	"github.com/matchcore/lobby-server/internal/match"
	"github.com/matchcore/lobby-server/internal/protocol"
)

// Msg is a message on the session's inbox. All session state mutation flows
// through this one channel, processed by a single goroutine.
type Msg interface{ isSessionMsg() }

// Join asks the session to register a participant and attach its outbox.
// The transport supplies ActorID; Reply receives the registration outcome.
type Join struct {
	ActorID     string
	DisplayName string
	Outbox      chan []byte
	Reply       chan error
}

// Disconnect signals that a participant's transport connection ended. The
// transport layer sends this; a departing host triggers migration.
type Disconnect struct{ ActorID string }

// FromClient is a decoded participant request. SenderID is stamped by the
// transport from the connection identity, never read from the payload.
type FromClient struct {
	SenderID string
	Msg      protocol.ClientMessage
}

// MatchEnded is the external match-end signal.
type MatchEnded struct{}

// tick is one countdown decrement from the session's ticker goroutine. Fires
// from a superseded ticker generation are dropped.
type tick struct{ gen uint64 }

// GetView requests a consistent snapshot of session internals, used by tests
// to observe state without data races.
type GetView struct{ Reply chan View }

// Shutdown stops the session loop and disconnects all participants.
type Shutdown struct{}

func (Join) isSessionMsg()       {}
func (Disconnect) isSessionMsg() {}
func (FromClient) isSessionMsg() {}
func (MatchEnded) isSessionMsg() {}
func (tick) isSessionMsg()       {}
func (GetView) isSessionMsg()    {}
func (Shutdown) isSessionMsg()   {}

// View is a race-free copy of session state for tests and diagnostics.
type View struct {
	SessionID       string
	Code            string
	HostID          string
	Players         []protocol.PlayerState
	Settings        protocol.Settings
	SettingsVersion uint64
	Match           match.Status
	StateVersion    uint64
	NumClients      int
	Migrating       bool
	PendingReplay   int
}
