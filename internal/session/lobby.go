package session

import (
	"slices"

	"github.com/cory-johannsen/matchlink/internal/protocol"
)

// Lobby caches the matchmaker's room listing. Returned rooms are copies.
// A Lobby is not safe for concurrent use.
type Lobby struct {
	rooms map[string]*Room
}

// NewLobby returns an empty listing.
func NewLobby() *Lobby {
	return &Lobby{rooms: make(map[string]*Room)}
}

// ApplySnapshot replaces the whole listing. Entries already flagged removed
// are skipped.
//
// Postcondition: Returns the new listing sorted by name.
func (l *Lobby) ApplySnapshot(list map[string]protocol.Properties) []*Room {
	l.rooms = make(map[string]*Room, len(list))
	for name, props := range list {
		r := NewRoom(name)
		r.Apply(props)
		if r.Removed {
			continue
		}
		l.rooms[name] = r
	}
	return l.Rooms()
}

// ApplyDelta merges an update. Unknown names are inserted, known ones are
// re-applied, and entries whose removed flag is set are dropped after the
// merge pass.
//
// Postcondition: Returns the added, updated and removed rooms, each sorted
// by name.
func (l *Lobby) ApplyDelta(list map[string]protocol.Properties) (added, updated, removed []*Room) {
	for _, name := range sortedKeys(list) {
		props := list[name]
		r, known := l.rooms[name]
		if !known {
			r = NewRoom(name)
			r.Apply(props)
			if r.Removed {
				continue
			}
			l.rooms[name] = r
			added = append(added, r.Clone())
			continue
		}
		r.Apply(props)
		if !r.Removed {
			updated = append(updated, r.Clone())
		}
	}
	for _, name := range sortedKeys(l.rooms) {
		if r := l.rooms[name]; r.Removed {
			delete(l.rooms, name)
			removed = append(removed, r.Clone())
		}
	}
	return added, updated, removed
}

// Room returns a copy of the named entry.
func (l *Lobby) Room(name string) (*Room, bool) {
	r, ok := l.rooms[name]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Rooms returns copies of every entry sorted by name.
func (l *Lobby) Rooms() []*Room {
	out := make([]*Room, 0, len(l.rooms))
	for _, name := range sortedKeys(l.rooms) {
		out = append(out, l.rooms[name].Clone())
	}
	return out
}

// Len returns the number of listed rooms.
func (l *Lobby) Len() int { return len(l.rooms) }

// Clear empties the listing.
func (l *Lobby) Clear() {
	l.rooms = make(map[string]*Room)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
