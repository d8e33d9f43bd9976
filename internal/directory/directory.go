// Package directory implements the room directory: a registry of joinable
// room summaries backing the read-only browse layer. Sessions publish
// summaries best-effort; they never depend on the directory once joined.
package directory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrUnknownSession is returned when updating or removing an unregistered session.
var ErrUnknownSession = errors.New("session not in directory")

// Summary is the browsable view of one room.
type Summary struct {
	SessionID  string    `json:"session_id"`
	Code       string    `json:"code"`
	RoomName   string    `json:"room_name"`
	GameMode   string    `json:"game_mode"`
	MapName    string    `json:"map_name"`
	Players    int       `json:"players"`
	MaxPlayers int       `json:"max_players"`
	State      string    `json:"state"`
	IsPrivate  bool      `json:"is_private"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	GameMode       string
	HideFull       bool
	HideInProgress bool
	HidePrivate    bool
}

func (f Filter) matches(s Summary) bool {
	if f.GameMode != "" && s.GameMode != f.GameMode {
		return false
	}
	if f.HideFull && s.Players >= s.MaxPlayers {
		return false
	}
	if f.HideInProgress && s.State != "waiting" && s.State != "countdown" {
		return false
	}
	if f.HidePrivate && s.IsPrivate {
		return false
	}
	return true
}

// Directory stores room summaries for discovery.
type Directory interface {
	Register(ctx context.Context, s Summary) error
	Update(ctx context.Context, s Summary) error
	Deregister(ctx context.Context, sessionID string) error
	Query(ctx context.Context, f Filter) ([]Summary, error)
}

// Memory is the in-process Directory used by default and in tests.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]Summary
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]Summary)}
}

// Register implements Directory.
func (m *Memory) Register(_ context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.rooms[s.SessionID] = s
	return nil
}

// Update implements Directory.
func (m *Memory) Update(_ context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[s.SessionID]; !ok {
		return ErrUnknownSession
	}
	s.UpdatedAt = time.Now()
	m.rooms[s.SessionID] = s
	return nil
}

// Deregister implements Directory.
func (m *Memory) Deregister(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[sessionID]; !ok {
		return ErrUnknownSession
	}
	delete(m.rooms, sessionID)
	return nil
}

// Query implements Directory. Results are ordered by room code for stable
// listings.
func (m *Memory) Query(_ context.Context, f Filter) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.rooms))
	for _, s := range m.rooms {
		if f.matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
