package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_FirstPlayerBecomesHost(t *testing.T) {
	r := New(4)

	a, err := r.Register("a1", "ada")
	require.NoError(t, err)
	assert.True(t, a.IsHost)
	assert.Equal(t, "a1", r.HostID())
	assert.Equal(t, Unassigned, a.TeamID)

	b, err := r.Register("b2", "bob")
	require.NoError(t, err)
	assert.False(t, b.IsHost)
	assert.Equal(t, "a1", r.HostID())
}

func TestRegister_DuplicateActorRejected(t *testing.T) {
	r := New(4)
	_, err := r.Register("a1", "ada")
	require.NoError(t, err)

	_, err = r.Register("a1", "impostor")
	assert.ErrorIs(t, err, ErrDuplicateActor)
	assert.Equal(t, 1, r.Count())
}

func TestRegister_FullRoomRejected(t *testing.T) {
	r := New(2)
	_, err := r.Register("a1", "ada")
	require.NoError(t, err)
	_, err = r.Register("b2", "bob")
	require.NoError(t, err)

	_, err = r.Register("c3", "carol")
	assert.ErrorIs(t, err, ErrSessionFull)
	assert.Equal(t, 2, r.Count())
}

func TestSetCapacity_DoesNotEvict(t *testing.T) {
	r := New(3)
	for _, id := range []string{"a1", "b2", "c3"} {
		_, err := r.Register(id, id)
		require.NoError(t, err)
	}

	r.SetCapacity(2)
	assert.Equal(t, 3, r.Count())
	_, err := r.Register("d4", "dan")
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestUnregister_HostFlagReported(t *testing.T) {
	r := New(4)
	_, _ = r.Register("a1", "ada")
	_, _ = r.Register("b2", "bob")

	wasHost, err := r.Unregister("b2")
	require.NoError(t, err)
	assert.False(t, wasHost)

	wasHost, err = r.Unregister("a1")
	require.NoError(t, err)
	assert.True(t, wasHost)
	assert.Equal(t, "", r.HostID())

	_, err = r.Unregister("zz")
	assert.ErrorIs(t, err, ErrUnknownActor)
}

func TestPromoteSuccessor_LowestActorID(t *testing.T) {
	r := New(4)
	_, _ = r.Register("a1", "ada")
	_, _ = r.Register("c3", "carol")
	_, _ = r.Register("b2", "bob")

	_, err := r.Unregister("a1")
	require.NoError(t, err)

	p, err := r.PromoteSuccessor()
	require.NoError(t, err)
	assert.Equal(t, "b2", p.ActorID)
	assert.True(t, p.IsHost)
	assert.Equal(t, "b2", r.HostID())

	// Exactly one host.
	hosts := 0
	for _, pl := range r.Players() {
		if pl.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts)
}

func TestPromoteSuccessor_EmptyRegistry(t *testing.T) {
	r := New(4)
	_, err := r.PromoteSuccessor()
	assert.ErrorIs(t, err, ErrUnknownActor)
}

func TestAllReady(t *testing.T) {
	r := New(4)
	assert.False(t, r.AllReady(), "empty registry is not all-ready")

	_, _ = r.Register("a1", "ada")
	_, _ = r.Register("b2", "bob")
	assert.False(t, r.AllReady())

	_, err := r.SetReady("a1", true)
	require.NoError(t, err)
	assert.False(t, r.AllReady())

	_, err = r.SetReady("b2", true)
	require.NoError(t, err)
	assert.True(t, r.AllReady())

	_, err = r.SetReady("zz", true)
	assert.ErrorIs(t, err, ErrUnknownActor)
}

func TestTeamCountsAndAssignedActors(t *testing.T) {
	r := New(6)
	for _, id := range []string{"a1", "b2", "c3", "d4"} {
		_, err := r.Register(id, id)
		require.NoError(t, err)
	}
	_, _ = r.SetTeam("a1", 0)
	_, _ = r.SetTeam("b2", 1)
	_, _ = r.SetTeam("c3", 0)
	// d4 stays unassigned

	assert.Equal(t, []int{2, 1}, r.TeamCounts(2))
	assert.Equal(t, []string{"a1", "b2", "c3"}, r.AssignedActors())
}

func TestPlayers_JoinOrder(t *testing.T) {
	r := New(4)
	for _, id := range []string{"c3", "a1", "b2"} {
		_, err := r.Register(id, id)
		require.NoError(t, err)
	}
	var ids []string
	for _, p := range r.Players() {
		ids = append(ids, p.ActorID)
	}
	assert.Equal(t, []string{"c3", "a1", "b2"}, ids)
}
