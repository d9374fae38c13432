package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "JoinedLobby", JoinedLobby.String())
	assert.Equal(t, "Error", Error.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Len(t, States(), 11)
}

func TestCheckTransition_Table(t *testing.T) {
	legal := [][2]State{
		{Uninitialized, ConnectingToMatchmaker},
		{Uninitialized, ConnectingToDirectory},
		{Disconnected, ConnectingToMatchmaker},
		{Error, ConnectingToDirectory},
		{ConnectedToDirectory, ConnectingToMatchmaker},
		{ConnectedToMatchmaker, JoinedLobby},
		{JoinedLobby, ConnectingToSession},
		{ConnectingToSession, ConnectedToSession},
		{ConnectedToSession, Joined},
	}
	for _, e := range legal {
		assert.NoError(t, CheckTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}
	illegal := [][2]State{
		{Uninitialized, Joined},
		{JoinedLobby, Joined},
		{Joined, JoinedLobby},
		{ConnectingToMatchmaker, JoinedLobby},
		{Joined, ConnectingToSession},
	}
	for _, e := range illegal {
		assert.ErrorIs(t, CheckTransition(e[0], e[1]), ErrIllegalTransition, "%s -> %s", e[0], e[1])
	}
}

func TestClient_RequestFollowsTable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c, err := New(Options{AppID: "app", MatchmakerAddress: "mm.test:9090"})
		require.NoError(rt, err)
		all := States()
		steps := rapid.SliceOfN(rapid.SampledFrom(all), 1, 30).Draw(rt, "steps")
		for _, to := range steps {
			from := c.State()
			legal := CheckTransition(from, to) == nil
			err := c.Request(to, false)
			if legal {
				require.NoError(rt, err)
				require.Equal(rt, to, c.State())
			} else {
				require.ErrorIs(rt, err, ErrIllegalTransition)
				require.Equal(rt, from, c.State())
			}
		}
	})
}

func TestClient_RequestTolerant(t *testing.T) {
	c, err := New(Options{AppID: "app", MatchmakerAddress: "mm.test:9090"})
	require.NoError(t, err)
	assert.NoError(t, c.Request(Joined, true))
	assert.Equal(t, Uninitialized, c.State())
}

func TestNotifier_ReentrantFlush(t *testing.T) {
	var n notifier
	var order []int
	n.push(func() {
		order = append(order, 1)
		n.push(func() { order = append(order, 3) })
		n.flush()
		order = append(order, 2)
	})
	n.flush()
	assert.Equal(t, []int{1, 2, 3}, order)
}
