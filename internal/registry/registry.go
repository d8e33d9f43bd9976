// Package registry tracks which participants are present in a session and
// their per-player attributes. It is confined to the session's event loop
// goroutine and therefore unlocked.
package registry

import (
	"errors"
	"time"
)

var (
	// ErrSessionFull is returned when registration would exceed the room's player cap.
	ErrSessionFull = errors.New("session is full")
	// ErrDuplicateActor is returned when an actor ID is already registered.
	ErrDuplicateActor = errors.New("actor already registered")
	// ErrUnknownActor is returned when an operation names an absent actor.
	ErrUnknownActor = errors.New("actor not registered")
)

// Unassigned marks a player that belongs to no team.
const Unassigned = -1

// PlayerInfo holds one participant's replicated attributes.
type PlayerInfo struct {
	ActorID     string
	DisplayName string
	TeamID      int
	IsReady     bool
	IsHost      bool
	JoinedAt    time.Time
}

// Registry is the session's player bookkeeping. Iteration follows join order
// so sync payloads and successor election are deterministic.
type Registry struct {
	capacity int
	order    []string
	players  map[string]*PlayerInfo
	hostID   string
}

// New creates an empty registry with the given player cap.
func New(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		players:  make(map[string]*PlayerInfo),
	}
}

// SetCapacity updates the player cap. Existing players are never evicted even
// if the new cap is below the current count; the cap only gates new joins.
func (r *Registry) SetCapacity(capacity int) { r.capacity = capacity }

// Capacity returns the current player cap.
func (r *Registry) Capacity() int { return r.capacity }

// Register adds a participant. The first registration in an empty session
// becomes the host.
func (r *Registry) Register(actorID, displayName string) (*PlayerInfo, error) {
	if _, exists := r.players[actorID]; exists {
		return nil, ErrDuplicateActor
	}
	if len(r.order) >= r.capacity {
		return nil, ErrSessionFull
	}

	p := &PlayerInfo{
		ActorID:     actorID,
		DisplayName: displayName,
		TeamID:      Unassigned,
		JoinedAt:    time.Now(),
	}
	if len(r.order) == 0 {
		p.IsHost = true
		r.hostID = actorID
	}
	r.players[actorID] = p
	r.order = append(r.order, actorID)
	return p, nil
}

// Unregister removes a participant and reports whether it was the host. The
// caller is responsible for electing a successor when wasHost is true.
func (r *Registry) Unregister(actorID string) (wasHost bool, err error) {
	p, exists := r.players[actorID]
	if !exists {
		return false, ErrUnknownActor
	}
	delete(r.players, actorID)
	for i, id := range r.order {
		if id == actorID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if p.IsHost {
		r.hostID = ""
		return true, nil
	}
	return false, nil
}

// PromoteSuccessor elects the remaining player with the lowest actor ID as
// the new host. It returns ErrUnknownActor if the registry is empty.
func (r *Registry) PromoteSuccessor() (*PlayerInfo, error) {
	if len(r.order) == 0 {
		return nil, ErrUnknownActor
	}
	lowest := r.order[0]
	for _, id := range r.order[1:] {
		if id < lowest {
			lowest = id
		}
	}
	p := r.players[lowest]
	p.IsHost = true
	r.hostID = lowest
	return p, nil
}

// SetReady mutates a player's ready flag. State-machine validity of the
// toggle is the session's concern.
func (r *Registry) SetReady(actorID string, ready bool) (*PlayerInfo, error) {
	p, exists := r.players[actorID]
	if !exists {
		return nil, ErrUnknownActor
	}
	p.IsReady = ready
	return p, nil
}

// SetTeam assigns a player to teamID (or Unassigned). Balancer validation
// happens before this is called.
func (r *Registry) SetTeam(actorID string, teamID int) (*PlayerInfo, error) {
	p, exists := r.players[actorID]
	if !exists {
		return nil, ErrUnknownActor
	}
	p.TeamID = teamID
	return p, nil
}

// Get returns the player with the given actor ID.
func (r *Registry) Get(actorID string) (*PlayerInfo, bool) {
	p, ok := r.players[actorID]
	return p, ok
}

// HostID returns the current host's actor ID, or "" during migration.
func (r *Registry) HostID() string { return r.hostID }

// Count returns the number of registered players.
func (r *Registry) Count() int { return len(r.order) }

// AllReady reports whether every registered player is ready. An empty
// registry is not considered all-ready.
func (r *Registry) AllReady() bool {
	if len(r.order) == 0 {
		return false
	}
	for _, id := range r.order {
		if !r.players[id].IsReady {
			return false
		}
	}
	return true
}

// Players returns all players in join order.
func (r *Registry) Players() []*PlayerInfo {
	out := make([]*PlayerInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

// TeamCounts returns per-team membership counts for teamCount teams.
// Unassigned players are not counted.
func (r *Registry) TeamCounts(teamCount int) []int {
	counts := make([]int, teamCount)
	for _, id := range r.order {
		if t := r.players[id].TeamID; t >= 0 && t < teamCount {
			counts[t]++
		}
	}
	return counts
}

// AssignedActors returns the actor IDs of all players on a team, in join order.
func (r *Registry) AssignedActors() []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.players[id].TeamID != Unassigned {
			out = append(out, id)
		}
	}
	return out
}
