// Package match implements the session lifecycle state machine as a pure
// transition function. The session loop owns the Status value and feeds it
// inputs; followers only ever observe the replicated result.
package match

import "errors"

// ErrInvalidTransition is returned for inputs that are not legal in the
// current state, e.g. a match-end signal while still waiting.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the session lifecycle phase.
type State string

const (
	Waiting    State = "waiting"
	Countdown  State = "countdown"
	InProgress State = "in_progress"
	Completed  State = "completed"
)

// Status is the machine's full state: the phase plus the countdown ticks
// remaining, which is meaningful only in Countdown.
type Status struct {
	State     State
	Remaining int
}

// NewStatus returns the initial Waiting status.
func NewStatus() Status {
	return Status{State: Waiting}
}

// Conditions is the aggregate registry state the guards evaluate.
type Conditions struct {
	Players        int
	MinPlayers     int
	AllReady       bool
	CountdownTicks int
}

func (c Conditions) startable() bool {
	return c.Players >= c.MinPlayers && c.AllReady
}

// InputType identifies a machine input.
type InputType string

const (
	// InputEvaluate re-checks the start guard after any registry mutation.
	InputEvaluate InputType = "Evaluate"
	// InputTick is one countdown timer decrement.
	InputTick InputType = "Tick"
	// InputMatchEnded is the external match-end signal.
	InputMatchEnded InputType = "MatchEnded"
)

// EventType identifies a transition side effect for the session to act on.
type EventType string

const (
	EvtCountdownStarted EventType = "CountdownStarted"
	EvtCountdownAborted EventType = "CountdownAborted"
	EvtMatchStarted     EventType = "MatchStarted"
	EvtMatchCompleted   EventType = "MatchCompleted"
)

// Event is a transition side effect.
type Event struct {
	Type EventType
}

// Step applies one input to the machine and returns the resulting events and
// status. The input status is never mutated.
func Step(s Status, in InputType, cond Conditions) ([]Event, Status, error) {
	switch in {
	case InputEvaluate:
		return evaluate(s, cond)
	case InputTick:
		return tick(s, cond)
	case InputMatchEnded:
		if s.State != InProgress {
			return nil, s, ErrInvalidTransition
		}
		return []Event{{Type: EvtMatchCompleted}}, Status{State: Completed}, nil
	default:
		return nil, s, ErrInvalidTransition
	}
}

func evaluate(s Status, cond Conditions) ([]Event, Status, error) {
	switch s.State {
	case Waiting:
		if cond.startable() {
			next := Status{State: Countdown, Remaining: cond.CountdownTicks}
			return []Event{{Type: EvtCountdownStarted}}, next, nil
		}
		return nil, s, nil

	case Countdown:
		if !cond.startable() {
			return []Event{{Type: EvtCountdownAborted}}, Status{State: Waiting}, nil
		}
		return nil, s, nil

	default:
		// Registry mutations while in progress or completed do not move the machine.
		return nil, s, nil
	}
}

func tick(s Status, cond Conditions) ([]Event, Status, error) {
	if s.State != Countdown {
		// Stale timer fire after an abort; ignore.
		return nil, s, nil
	}

	next := s
	next.Remaining--
	if next.Remaining > 0 {
		return nil, next, nil
	}

	// Tick zero: re-validate the guard before starting.
	if !cond.startable() {
		return []Event{{Type: EvtCountdownAborted}}, Status{State: Waiting}, nil
	}
	return []Event{{Type: EvtMatchStarted}}, Status{State: InProgress}, nil
}
