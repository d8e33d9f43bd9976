package replicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostOnly(host string) AuthorityFunc {
	return func(id string) bool { return id == host }
}

func TestWrite_BumpsVersionAndNotifies(t *testing.T) {
	v := NewVar("matchState", "waiting", hostOnly("a1"))

	var gotOld, gotNew string
	calls := 0
	v.Subscribe(func(old, new string) {
		gotOld, gotNew = old, new
		calls++
	})

	require.NoError(t, v.Write("a1", "countdown"))
	assert.Equal(t, uint64(1), v.Version())
	assert.Equal(t, "countdown", v.Read())
	assert.Equal(t, 1, calls)
	assert.Equal(t, "waiting", gotOld)
	assert.Equal(t, "countdown", gotNew)
}

func TestWrite_NonAuthorityRejected(t *testing.T) {
	v := NewVar("countdown", 5, hostOnly("a1"))
	notified := false
	v.Subscribe(func(_, _ int) { notified = true })

	err := v.Write("b2", 4)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, 5, v.Read())
	assert.Equal(t, uint64(0), v.Version())
	assert.False(t, notified)
}

func TestWrite_EqualValueIsNoOp(t *testing.T) {
	v := NewVar("matchState", "waiting", hostOnly("a1"))
	calls := 0
	v.Subscribe(func(_, _ string) { calls++ })

	require.NoError(t, v.Write("a1", "waiting"))
	assert.Equal(t, uint64(0), v.Version())
	assert.Equal(t, 0, calls)
}

func TestWrite_VersionsStrictlyIncrease(t *testing.T) {
	v := NewVar("countdown", 0, hostOnly("a1"))
	last := v.Version()
	for i := 1; i <= 10; i++ {
		require.NoError(t, v.Write("a1", i))
		assert.Greater(t, v.Version(), last)
		last = v.Version()
	}
	assert.Equal(t, uint64(10), last)
}

func TestSubscribe_DeliveryOrderFollowsWriteOrder(t *testing.T) {
	v := NewVar("countdown", 0, hostOnly("a1"))
	var seen []int
	v.Subscribe(func(_, new int) { seen = append(seen, new) })

	for i := 1; i <= 4; i++ {
		require.NoError(t, v.Write("a1", i))
	}
	assert.Equal(t, []int{1, 2, 3, 4}, seen)
}

func TestWrite_AuthorityMayMove(t *testing.T) {
	host := "a1"
	v := NewVar("matchState", "waiting", func(id string) bool { return id == host })

	require.NoError(t, v.Write("a1", "countdown"))
	host = "b2"
	assert.ErrorIs(t, v.Write("a1", "waiting"), ErrNotAuthorized)
	require.NoError(t, v.Write("b2", "waiting"))
	assert.Equal(t, "waiting", v.Read())
}
