package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/session"
)

func names(rooms []*session.Room) []string {
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Name)
	}
	return out
}

func TestLobby_SnapshotReplaces(t *testing.T) {
	l := session.NewLobby()
	l.ApplySnapshot(map[string]protocol.Properties{"old": props(nil)})

	rooms := l.ApplySnapshot(map[string]protocol.Properties{
		"b":    props(map[string]any{"252": int64(1)}),
		"a":    props(map[string]any{"255": int64(4)}),
		"gone": props(map[string]any{"251": true}),
	})
	assert.Equal(t, []string{"a", "b"}, names(rooms))
	assert.Equal(t, 2, l.Len())
	_, ok := l.Room("old")
	assert.False(t, ok)
}

func TestLobby_Delta(t *testing.T) {
	l := session.NewLobby()
	l.ApplySnapshot(map[string]protocol.Properties{
		"a": props(map[string]any{"252": int64(1)}),
		"b": props(map[string]any{"252": int64(1)}),
	})

	added, updated, removed := l.ApplyDelta(map[string]protocol.Properties{
		"a": props(map[string]any{"252": int64(2)}),
		"b": props(map[string]any{"251": true}),
		"c": props(map[string]any{"252": int64(1)}),
		"z": props(map[string]any{"251": true}),
	})
	assert.Equal(t, []string{"c"}, names(added))
	assert.Equal(t, []string{"a"}, names(updated))
	assert.Equal(t, []string{"b"}, names(removed))
	assert.Equal(t, 2, l.Len())

	a, ok := l.Room("a")
	require.True(t, ok)
	assert.Equal(t, 2, a.PlayerCount)
}

func TestLobby_ReturnsCopies(t *testing.T) {
	l := session.NewLobby()
	l.ApplySnapshot(map[string]protocol.Properties{"a": props(map[string]any{"k": "v"})})
	rooms := l.Rooms()
	rooms[0].Custom["k"] = "mutated"
	a, _ := l.Room("a")
	assert.Equal(t, "v", a.Custom["k"])
}

func TestLobby_Clear(t *testing.T) {
	l := session.NewLobby()
	l.ApplySnapshot(map[string]protocol.Properties{"a": props(nil)})
	l.Clear()
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Rooms())
}
