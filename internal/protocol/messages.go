// Package protocol defines the wire messages exchanged between participants
// and a lobby session, with an explicit decode boundary that rejects unknown
// or malformed payloads instead of coercing them.
//
// Sender identity is never part of a payload: the transport layer stamps each
// inbound message with the actor ID bound to the connection it arrived on.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned when a payload carries an unrecognized type tag.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed is returned when a payload is not valid JSON or is missing
	// fields required by its type tag.
	ErrMalformed = errors.New("malformed message")
)

// Settings are the host-configurable room parameters replicated to all
// participants. The room password hash is deliberately not part of this
// struct; it never leaves the server.
type Settings struct {
	RoomName   string `json:"room_name"`
	GameMode   string `json:"game_mode"`
	MapName    string `json:"map_name"`
	MaxPlayers int    `json:"max_players"`
	IsPrivate  bool   `json:"is_private"`
}

// Client -> session message type tags.
const (
	TypeRegister          = "Register"
	TypeSetReady          = "SetReady"
	TypeRequestTeamChange = "RequestTeamChange"
	TypeUpdateSettings    = "UpdateSettings"
	TypeAutoBalance       = "AutoBalance"
	TypeKick              = "Kick"
	TypeLeave             = "Leave"
)

// Session -> client message type tags.
const (
	TypeSessionStateSync = "SessionStateSync"
	TypePlayerStateSync  = "PlayerStateSync"
	TypeSettingsSync     = "SettingsSync"
	TypeMatchStateSync   = "MatchStateSync"
	TypeRejection        = "Rejection"
)

// ClientMessage is the decoded form of a participant request.
type ClientMessage interface{ Tag() string }

// Register asks the session to add the sender to the player registry.
type Register struct{ DisplayName string }

// SetReady toggles the sender's ready flag.
type SetReady struct{ Ready bool }

// RequestTeamChange asks to move the sender to the given team.
type RequestTeamChange struct{ TeamID int }

// UpdateSettings replaces the room settings. Host only.
type UpdateSettings struct{ Settings Settings }

// AutoBalance redistributes all assigned players across teams. Host only.
type AutoBalance struct{}

// Kick removes the target participant from the session. Host only.
type Kick struct{ TargetID string }

// Leave removes the sender from the session.
type Leave struct{}

func (Register) Tag() string          { return TypeRegister }
func (SetReady) Tag() string          { return TypeSetReady }
func (RequestTeamChange) Tag() string { return TypeRequestTeamChange }
func (UpdateSettings) Tag() string    { return TypeUpdateSettings }
func (AutoBalance) Tag() string       { return TypeAutoBalance }
func (Kick) Tag() string              { return TypeKick }
func (Leave) Tag() string             { return TypeLeave }

type clientEnvelope struct {
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name,omitempty"`
	Ready       *bool     `json:"ready,omitempty"`
	TeamID      *int      `json:"team_id,omitempty"`
	Settings    *Settings `json:"settings,omitempty"`
	TargetID    string    `json:"target_id,omitempty"`
}

// DecodeClient parses a raw payload into a typed client message. Unknown type
// tags and missing required fields are rejected, never silently coerced.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeRegister:
		if env.DisplayName == "" {
			return nil, fmt.Errorf("%w: Register requires display_name", ErrMalformed)
		}
		return Register{DisplayName: env.DisplayName}, nil
	case TypeSetReady:
		if env.Ready == nil {
			return nil, fmt.Errorf("%w: SetReady requires ready", ErrMalformed)
		}
		return SetReady{Ready: *env.Ready}, nil
	case TypeRequestTeamChange:
		if env.TeamID == nil {
			return nil, fmt.Errorf("%w: RequestTeamChange requires team_id", ErrMalformed)
		}
		return RequestTeamChange{TeamID: *env.TeamID}, nil
	case TypeUpdateSettings:
		if env.Settings == nil {
			return nil, fmt.Errorf("%w: UpdateSettings requires settings", ErrMalformed)
		}
		return UpdateSettings{Settings: *env.Settings}, nil
	case TypeAutoBalance:
		return AutoBalance{}, nil
	case TypeKick:
		if env.TargetID == "" {
			return nil, fmt.Errorf("%w: Kick requires target_id", ErrMalformed)
		}
		return Kick{TargetID: env.TargetID}, nil
	case TypeLeave:
		return Leave{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// EncodeClient serializes a client message for transmission. It is the
// inverse of DecodeClient and exists mainly for test clients.
func EncodeClient(m ClientMessage) []byte {
	env := clientEnvelope{Type: m.Tag()}
	switch msg := m.(type) {
	case Register:
		env.DisplayName = msg.DisplayName
	case SetReady:
		env.Ready = &msg.Ready
	case RequestTeamChange:
		env.TeamID = &msg.TeamID
	case UpdateSettings:
		env.Settings = &msg.Settings
	case Kick:
		env.TargetID = msg.TargetID
	}
	data, _ := json.Marshal(env)
	return data
}

// PlayerState is the replicated view of one participant.
type PlayerState struct {
	ActorID     string `json:"actor_id"`
	DisplayName string `json:"display_name"`
	TeamID      int    `json:"team_id"`
	IsReady     bool   `json:"is_ready"`
	IsHost      bool   `json:"is_host"`
}

// SessionStateSync carries the full session state to a newly joined
// participant so it can catch up in one message.
type SessionStateSync struct {
	Type               string        `json:"type"`
	SessionID          string        `json:"session_id"`
	Code               string        `json:"code"`
	You                string        `json:"you"`
	Settings           Settings      `json:"settings"`
	SettingsVersion    uint64        `json:"settings_version"`
	MatchState         string        `json:"match_state"`
	StateVersion       uint64        `json:"state_version"`
	CountdownRemaining int           `json:"countdown_remaining"`
	Players            []PlayerState `json:"players"`
}

// PlayerStateSync is broadcast after any registry mutation. Removed is true
// when the player left the session; Player is nil in that case.
type PlayerStateSync struct {
	Type    string       `json:"type"`
	ActorID string       `json:"actor_id"`
	Removed bool         `json:"removed,omitempty"`
	Player  *PlayerState `json:"player,omitempty"`
}

// SettingsSync is broadcast when the room settings change.
type SettingsSync struct {
	Type     string   `json:"type"`
	Settings Settings `json:"settings"`
	Version  uint64   `json:"version"`
}

// MatchStateSync is broadcast when the match state or countdown changes.
// Scene is set only on the transition into an in-progress match.
type MatchStateSync struct {
	Type               string `json:"type"`
	MatchState         string `json:"match_state"`
	StateVersion       uint64 `json:"state_version"`
	CountdownRemaining int    `json:"countdown_remaining"`
	Scene              string `json:"scene,omitempty"`
}

// Rejection reports a refused request back to its sender. The session state
// is unchanged; most rejections stem from benign races.
type Rejection struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Rejection codes.
const (
	CodeNotAuthorized          = "not_authorized"
	CodeSessionFull            = "session_full"
	CodeDuplicateActor         = "duplicate_actor"
	CodeInvalidTeamChange      = "invalid_team_change"
	CodeInvalidStateTransition = "invalid_state_transition"
	CodeNoSuccessor            = "no_successor"
	CodeMalformed              = "malformed_message"
)

// Encode serializes a server message. The message structs marshal without
// error by construction.
func Encode(msg any) []byte {
	data, _ := json.Marshal(msg)
	return data
}
