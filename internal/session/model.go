package session

import (
	"github.com/cory-johannsen/matchlink/internal/protocol"
)

// Model is the joined room plus its roster. The local actor is always in the
// roster, including while no room is joined.
// A Model is not safe for concurrent use.
type Model struct {
	local  *Actor
	room   *Room
	actors map[int]*Actor
	roster []*Actor
}

// NewModel returns a model seeded with local.
//
// Precondition: local must not be nil.
// Postcondition: The roster holds exactly local.
func NewModel(local *Actor) *Model {
	local.Local = true
	m := &Model{local: local}
	m.Reset()
	return m
}

// Reset drops the room and every remote actor, then re-seeds the roster
// with the local actor.
func (m *Model) Reset() {
	m.room = nil
	m.local.Nr = NoActorNr
	m.local.Suspended = false
	m.actors = make(map[int]*Actor)
	m.roster = []*Actor{m.local}
}

// Local returns the local actor.
func (m *Model) Local() *Actor { return m.local }

// Room returns the joined room, or nil.
func (m *Model) Room() *Room { return m.room }

// SetRoom replaces the joined room.
func (m *Model) SetRoom(r *Room) { m.room = r }

// Len returns the roster size.
func (m *Model) Len() int { return len(m.roster) }

// Actor looks up an actor by number.
func (m *Model) Actor(nr int) (*Actor, bool) {
	if nr == m.local.Nr && nr != NoActorNr {
		return m.local, true
	}
	a, ok := m.actors[nr]
	return a, ok
}

// ActorAt returns the i-th roster entry in insertion order.
func (m *Model) ActorAt(i int) (*Actor, bool) {
	if i < 0 || i >= len(m.roster) {
		return nil, false
	}
	return m.roster[i], true
}

// Actors returns the roster in insertion order.
func (m *Model) Actors() []*Actor {
	return append([]*Actor(nil), m.roster...)
}

// ApplyJoin rebuilds the roster from a join response. The local actor is
// matched by number and updated in place; every other number in actorNrs
// becomes a new actor, in order. props is keyed by actor number.
//
// Postcondition: The roster holds the local actor once, followed by one
// actor per distinct remote number in actorNrs.
func (m *Model) ApplyJoin(localNr int, actorNrs []int, props map[int]protocol.Properties) {
	m.actors = make(map[int]*Actor)
	m.roster = []*Actor{m.local}
	m.local.Nr = localNr
	m.local.Suspended = false
	if p, ok := props[localNr]; ok {
		m.local.Apply(p)
		m.local.Suspended = false
	}
	for _, nr := range actorNrs {
		if nr == localNr {
			continue
		}
		if _, dup := m.actors[nr]; dup {
			continue
		}
		a := NewActor("", nr, false)
		if p, ok := props[nr]; ok {
			a.Apply(p)
		}
		m.actors[nr] = a
		m.roster = append(m.roster, a)
	}
}

// AddActor handles a join event. A known suspended actor is revived in place.
//
// Postcondition: Returns the actor and whether it was newly appended.
func (m *Model) AddActor(nr int, props protocol.Properties) (*Actor, bool) {
	if a, ok := m.Actor(nr); ok {
		a.Apply(props)
		a.Suspended = false
		return a, false
	}
	a := NewActor("", nr, false)
	a.Apply(props)
	a.Suspended = false
	m.actors[nr] = a
	m.roster = append(m.roster, a)
	return a, true
}

// RemoveActor handles a leave event. When suspend is true the actor is
// flagged and kept; otherwise it is removed. The local actor is never removed.
//
// Postcondition: Returns the affected actor, or false for unknown numbers.
func (m *Model) RemoveActor(nr int, suspend bool) (*Actor, bool) {
	a, ok := m.Actor(nr)
	if !ok {
		return nil, false
	}
	if suspend || a == m.local {
		a.Suspended = suspend
		return a, true
	}
	delete(m.actors, nr)
	for i, r := range m.roster {
		if r == a {
			m.roster = append(m.roster[:i], m.roster[i+1:]...)
			break
		}
	}
	return a, true
}

// ApplyActorProps updates one actor. Unknown numbers are dropped.
//
// Postcondition: Returns the actor and its changed custom keys, or false.
func (m *Model) ApplyActorProps(nr int, props protocol.Properties) (*Actor, map[string]any, bool) {
	a, ok := m.Actor(nr)
	if !ok {
		return nil, nil, false
	}
	return a, a.Apply(props), true
}

// ApplyRoomProps updates the joined room.
//
// Postcondition: Returns the changed custom keys, or false with no room.
func (m *Model) ApplyRoomProps(props protocol.Properties) (map[string]any, bool) {
	if m.room == nil {
		return nil, false
	}
	return m.room.Apply(props), true
}
