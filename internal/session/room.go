// Package session holds the client-side view of rooms and actors: the
// lobby listing and the joined room with its roster.
package session

import (
	"maps"
	"slices"

	"github.com/cory-johannsen/matchlink/internal/protocol"
)

// RoomStandard holds the well-known room attributes.
type RoomStandard struct {
	MaxPlayers          int
	IsVisible           bool
	IsOpen              bool
	PlayerCount         int
	EmptyRoomTTL        int
	PlayerTTL           int
	CheckUserOnJoin     bool
	CleanupCacheOnLeave bool
	Removed             bool
	PropsListedInLobby  []string
	ExpectedUsers       []string
	MasterClientID      int
}

// Room is a named session. A lobby listing entry and a joined room share
// this type; the joined one is built fresh and never merged with a listing.
type Room struct {
	Name    string
	Address string
	RoomStandard
	Custom map[string]any
}

// NewRoom returns an open, visible room with no custom properties.
func NewRoom(name string) *Room {
	return &Room{
		Name: name,
		RoomStandard: RoomStandard{
			IsVisible: true,
			IsOpen:    true,
		},
		Custom: make(map[string]any),
	}
}

// Apply merges props into the room. Standard keys update the typed fields
// first; custom keys are then diffed against their previous values. A nil
// custom value deletes the key.
//
// Postcondition: Returns only the custom keys whose value changed.
func (r *Room) Apply(props protocol.Properties) map[string]any {
	s := props.Standard
	if n, ok := protocol.ToInt(s[protocol.RoomMaxPlayers]); ok {
		r.MaxPlayers = n
	}
	if b, ok := s[protocol.RoomIsVisible].(bool); ok {
		r.IsVisible = b
	}
	if b, ok := s[protocol.RoomIsOpen].(bool); ok {
		r.IsOpen = b
	}
	if n, ok := protocol.ToInt(s[protocol.RoomPlayerCount]); ok {
		r.PlayerCount = n
	}
	if b, ok := s[protocol.RoomRemoved].(bool); ok {
		r.Removed = b
	}
	if keys, ok := protocol.ToStrings(s[protocol.RoomPropsListedInLobby]); ok {
		r.PropsListedInLobby = keys
	}
	if b, ok := s[protocol.RoomCleanupCacheOnLeave].(bool); ok {
		r.CleanupCacheOnLeave = b
	}
	if n, ok := protocol.ToInt(s[protocol.RoomMasterClientID]); ok {
		r.MasterClientID = n
	}
	if users, ok := protocol.ToStrings(s[protocol.RoomExpectedUsers]); ok {
		r.ExpectedUsers = users
	}
	if n, ok := protocol.ToInt(s[protocol.RoomPlayerTTL]); ok {
		r.PlayerTTL = n
	}
	if n, ok := protocol.ToInt(s[protocol.RoomEmptyRoomTTL]); ok {
		r.EmptyRoomTTL = n
	}
	return diffInto(r.Custom, props.Custom)
}

// Properties renders the room for a create-room request: standard
// attributes plus custom properties.
func (r *Room) Properties() protocol.Properties {
	props := protocol.NewProperties()
	props.Standard[protocol.RoomIsVisible] = r.IsVisible
	props.Standard[protocol.RoomIsOpen] = r.IsOpen
	if r.MaxPlayers > 0 {
		props.Standard[protocol.RoomMaxPlayers] = r.MaxPlayers
	}
	if len(r.PropsListedInLobby) > 0 {
		props.Standard[protocol.RoomPropsListedInLobby] = slices.Clone(r.PropsListedInLobby)
	}
	if len(r.ExpectedUsers) > 0 {
		props.Standard[protocol.RoomExpectedUsers] = slices.Clone(r.ExpectedUsers)
	}
	maps.Copy(props.Custom, r.Custom)
	return props
}

// Clone returns a deep copy of the top-level fields and maps.
func (r *Room) Clone() *Room {
	c := *r
	c.PropsListedInLobby = slices.Clone(r.PropsListedInLobby)
	c.ExpectedUsers = slices.Clone(r.ExpectedUsers)
	c.Custom = maps.Clone(r.Custom)
	if c.Custom == nil {
		c.Custom = make(map[string]any)
	}
	return &c
}

// diffInto writes every changed entry of next into cur.
func diffInto(cur, next map[string]any) map[string]any {
	changed := make(map[string]any)
	for k, v := range next {
		prev, had := cur[k]
		if v == nil {
			if had {
				delete(cur, k)
				changed[k] = nil
			}
			continue
		}
		if had && protocol.Equal(prev, v) {
			continue
		}
		cur[k] = v
		changed[k] = v
	}
	return changed
}
