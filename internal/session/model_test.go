package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/session"
)

func newModel() *session.Model {
	return session.NewModel(session.NewActor("me", session.NoActorNr, true))
}

func TestModel_SeededWithLocal(t *testing.T) {
	m := newModel()
	require.Equal(t, 1, m.Len())
	a, ok := m.ActorAt(0)
	require.True(t, ok)
	assert.Same(t, m.Local(), a)
	assert.True(t, a.Local)
	assert.Nil(t, m.Room())
}

func TestModel_ApplyJoin(t *testing.T) {
	m := newModel()
	m.ApplyJoin(2, []int{1, 2, 3}, map[int]protocol.Properties{
		1: props(map[string]any{"255": "host"}),
		2: props(map[string]any{"255": "me-renamed", "team": "red"}),
		3: props(map[string]any{"255": "guest"}),
	})

	actors := m.Actors()
	require.Len(t, actors, 3)
	assert.Same(t, m.Local(), actors[0])
	assert.Equal(t, 2, m.Local().Nr)
	assert.Equal(t, "me-renamed", m.Local().Name)
	assert.Equal(t, "red", m.Local().Custom["team"])
	assert.Equal(t, "host", actors[1].Name)
	assert.Equal(t, 1, actors[1].Nr)
	assert.Equal(t, "guest", actors[2].Name)

	a, ok := m.Actor(2)
	require.True(t, ok)
	assert.Same(t, m.Local(), a)
}

func TestModel_AddAndRemove(t *testing.T) {
	m := newModel()
	m.ApplyJoin(1, []int{1}, nil)

	a, added := m.AddActor(5, props(map[string]any{"255": "eve"}))
	assert.True(t, added)
	assert.Equal(t, "eve", a.Name)
	assert.Equal(t, 2, m.Len())

	a, ok := m.RemoveActor(5, true)
	require.True(t, ok)
	assert.True(t, a.Suspended)
	assert.Equal(t, 2, m.Len())

	a, added = m.AddActor(5, protocol.NewProperties())
	assert.False(t, added)
	assert.False(t, a.Suspended)

	_, ok = m.RemoveActor(5, false)
	require.True(t, ok)
	assert.Equal(t, 1, m.Len())
	_, ok = m.Actor(5)
	assert.False(t, ok)
}

func TestModel_RemoveUnknownAndLocal(t *testing.T) {
	m := newModel()
	m.ApplyJoin(1, []int{1}, nil)
	_, ok := m.RemoveActor(42, false)
	assert.False(t, ok)

	_, ok = m.RemoveActor(1, false)
	assert.True(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestModel_ApplyActorPropsDropsUnknown(t *testing.T) {
	m := newModel()
	m.ApplyJoin(1, []int{1, 2}, nil)

	_, _, ok := m.ApplyActorProps(9, props(map[string]any{"x": int64(1)}))
	assert.False(t, ok)

	a, changed, ok := m.ApplyActorProps(2, props(map[string]any{"x": int64(1)}))
	require.True(t, ok)
	assert.Equal(t, 2, a.Nr)
	assert.Equal(t, map[string]any{"x": int64(1)}, changed)
}

func TestModel_ApplyRoomProps(t *testing.T) {
	m := newModel()
	_, ok := m.ApplyRoomProps(props(map[string]any{"x": "v"}))
	assert.False(t, ok)

	m.SetRoom(session.NewRoom("r1"))
	changed, ok := m.ApplyRoomProps(props(map[string]any{"x": "v"}))
	require.True(t, ok)
	assert.Equal(t, map[string]any{"x": "v"}, changed)
}

func TestModel_Reset(t *testing.T) {
	m := newModel()
	m.SetRoom(session.NewRoom("r1"))
	m.ApplyJoin(3, []int{1, 3, 4}, nil)
	m.Reset()
	assert.Nil(t, m.Room())
	require.Equal(t, 1, m.Len())
	assert.Equal(t, session.NoActorNr, m.Local().Nr)
	assert.Equal(t, "me", m.Local().Name)
}

// Property: after any join the roster holds the local actor exactly once and
// one entry per distinct remote number.
func TestPropertyModel_RosterInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := newModel()
		local := rapid.IntRange(1, 20).Draw(t, "local")
		nrs := rapid.SliceOf(rapid.IntRange(1, 20)).Draw(t, "actors")
		if rapid.Bool().Draw(t, "includeLocal") {
			nrs = append(nrs, local)
		}
		m.ApplyJoin(local, nrs, nil)

		remote := make(map[int]bool)
		for _, nr := range nrs {
			if nr != local {
				remote[nr] = true
			}
		}
		localCount := 0
		for _, a := range m.Actors() {
			if a.Local {
				localCount++
			}
		}
		if localCount != 1 {
			t.Fatalf("local actor appears %d times", localCount)
		}
		if m.Len() != len(remote)+1 {
			t.Fatalf("roster has %d actors, want %d", m.Len(), len(remote)+1)
		}

		for nr := range remote {
			m.RemoveActor(nr, rapid.Bool().Draw(t, "suspend"))
		}
		m.Reset()
		if m.Len() != 1 || !m.Actors()[0].Local {
			t.Fatalf("reset left %d actors", m.Len())
		}
	})
}
