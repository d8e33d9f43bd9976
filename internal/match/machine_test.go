package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ready(players int) Conditions {
	return Conditions{Players: players, MinPlayers: 2, AllReady: true, CountdownTicks: 3}
}

func notReady(players int) Conditions {
	c := ready(players)
	c.AllReady = false
	return c
}

func hasEvent(events []Event, et EventType) bool {
	for _, e := range events {
		if e.Type == et {
			return true
		}
	}
	return false
}

func TestEvaluate_StartsCountdownWhenAllReady(t *testing.T) {
	events, next, err := Step(NewStatus(), InputEvaluate, ready(2))
	require.NoError(t, err)
	assert.Equal(t, Countdown, next.State)
	assert.Equal(t, 3, next.Remaining)
	assert.True(t, hasEvent(events, EvtCountdownStarted))
}

func TestEvaluate_StaysWaitingBelowMinPlayers(t *testing.T) {
	events, next, err := Step(NewStatus(), InputEvaluate, ready(1))
	require.NoError(t, err)
	assert.Equal(t, Waiting, next.State)
	assert.Empty(t, events)
}

func TestEvaluate_StaysWaitingWhenNotAllReady(t *testing.T) {
	_, next, err := Step(NewStatus(), InputEvaluate, notReady(4))
	require.NoError(t, err)
	assert.Equal(t, Waiting, next.State)
}

func TestEvaluate_UnreadyAbortsCountdown(t *testing.T) {
	st := Status{State: Countdown, Remaining: 2}
	events, next, err := Step(st, InputEvaluate, notReady(2))
	require.NoError(t, err)
	assert.Equal(t, Waiting, next.State)
	assert.Equal(t, 0, next.Remaining, "countdown cleared on abort")
	assert.True(t, hasEvent(events, EvtCountdownAborted))
}

func TestEvaluate_DepartureBelowMinAbortsCountdown(t *testing.T) {
	st := Status{State: Countdown, Remaining: 2}
	events, next, err := Step(st, InputEvaluate, ready(1))
	require.NoError(t, err)
	assert.Equal(t, Waiting, next.State)
	assert.True(t, hasEvent(events, EvtCountdownAborted))
}

func TestTick_CountsDownToMatchStart(t *testing.T) {
	st := Status{State: Countdown, Remaining: 2}

	events, st, err := Step(st, InputTick, ready(2))
	require.NoError(t, err)
	assert.Equal(t, Countdown, st.State)
	assert.Equal(t, 1, st.Remaining)
	assert.Empty(t, events)

	events, st, err = Step(st, InputTick, ready(2))
	require.NoError(t, err)
	assert.Equal(t, InProgress, st.State)
	assert.True(t, hasEvent(events, EvtMatchStarted))
}

func TestTick_ZeroRevalidatesGuard(t *testing.T) {
	st := Status{State: Countdown, Remaining: 1}
	events, next, err := Step(st, InputTick, notReady(2))
	require.NoError(t, err)
	assert.Equal(t, Waiting, next.State)
	assert.True(t, hasEvent(events, EvtCountdownAborted))
	assert.False(t, hasEvent(events, EvtMatchStarted))
}

func TestTick_IgnoredOutsideCountdown(t *testing.T) {
	for _, state := range []State{Waiting, InProgress, Completed} {
		st := Status{State: state}
		events, next, err := Step(st, InputTick, ready(2))
		require.NoError(t, err)
		assert.Equal(t, st, next, "state %s", state)
		assert.Empty(t, events)
	}
}

func TestMatchEnded_OnlyFromInProgress(t *testing.T) {
	events, next, err := Step(Status{State: InProgress}, InputMatchEnded, ready(2))
	require.NoError(t, err)
	assert.Equal(t, Completed, next.State)
	assert.True(t, hasEvent(events, EvtMatchCompleted))

	for _, state := range []State{Waiting, Countdown, Completed} {
		_, _, err := Step(Status{State: state}, InputMatchEnded, ready(2))
		assert.ErrorIs(t, err, ErrInvalidTransition, "state %s", state)
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	st := Status{State: Completed}
	for _, in := range []InputType{InputEvaluate, InputTick} {
		events, next, err := Step(st, in, ready(4))
		require.NoError(t, err)
		assert.Equal(t, Completed, next.State)
		assert.Empty(t, events)
	}
}
