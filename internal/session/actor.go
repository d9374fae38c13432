package session

import (
	"maps"

	"github.com/cory-johannsen/matchlink/internal/protocol"
)

// NoActorNr marks an actor the session server has not numbered yet.
const NoActorNr = -1

// Actor is one participant in a room.
type Actor struct {
	Nr        int
	Name      string
	UserID    string
	Local     bool
	Suspended bool
	Custom    map[string]any
}

// NewActor returns an actor with no custom properties.
func NewActor(name string, nr int, local bool) *Actor {
	return &Actor{
		Nr:     nr,
		Name:   name,
		Local:  local,
		Custom: make(map[string]any),
	}
}

// Apply merges props into the actor with the same rule as Room.Apply.
//
// Postcondition: Returns only the custom keys whose value changed.
func (a *Actor) Apply(props protocol.Properties) map[string]any {
	if name, ok := protocol.ToString(props.Standard[protocol.ActorPlayerName]); ok {
		a.Name = name
	}
	if id, ok := protocol.ToString(props.Standard[protocol.ActorUserID]); ok {
		a.UserID = id
	}
	if inactive, ok := props.Standard[protocol.ActorIsInactive].(bool); ok {
		a.Suspended = inactive
	}
	return diffInto(a.Custom, props.Custom)
}

// Properties renders the actor for a join request.
func (a *Actor) Properties() protocol.Properties {
	props := protocol.NewProperties()
	if a.Name != "" {
		props.Standard[protocol.ActorPlayerName] = a.Name
	}
	maps.Copy(props.Custom, a.Custom)
	return props
}

// Clone returns a copy with its own property map.
func (a *Actor) Clone() *Actor {
	c := *a
	c.Custom = maps.Clone(a.Custom)
	if c.Custom == nil {
		c.Custom = make(map[string]any)
	}
	return &c
}
