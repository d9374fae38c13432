package client

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/protocol"
)

// SetRoomProperty sets one custom room property. A nil value deletes it.
func (c *Client) SetRoomProperty(key string, value any) error {
	return c.SetRoomProperties(map[string]any{key: value})
}

// SetRoomProperties sets custom room properties and broadcasts them. The
// local room applies the change right away.
//
// Precondition: State must be Joined; no key may be a standard key.
// Postcondition: Returns nil once sent, or an error with nothing changed.
func (c *Client) SetRoomProperties(props map[string]any) error {
	custom, err := customProperties(props)
	if err != nil {
		return err
	}
	return c.setRoomProperties(protocol.Properties{Standard: map[byte]any{}, Custom: custom})
}

// SetRoomOpen controls whether other players may join.
func (c *Client) SetRoomOpen(open bool) error {
	return c.setRoomStandard(protocol.RoomIsOpen, open)
}

// SetRoomVisible controls whether the room is listed in the lobby.
func (c *Client) SetRoomVisible(visible bool) error {
	return c.setRoomStandard(protocol.RoomIsVisible, visible)
}

// SetRoomMaxPlayers changes the capacity; 0 means unlimited.
func (c *Client) SetRoomMaxPlayers(n int) error {
	if n < 0 || n > 255 {
		return fmt.Errorf("%w: max players %d out of range", ErrInvalidOptions, n)
	}
	return c.setRoomStandard(protocol.RoomMaxPlayers, n)
}

// SetPropsListedInLobby changes which custom keys the lobby listing shows.
func (c *Client) SetPropsListedInLobby(keys []string) error {
	for _, k := range keys {
		if err := checkCustomKey(k); err != nil {
			return err
		}
	}
	return c.setRoomStandard(protocol.RoomPropsListedInLobby, append([]string{}, keys...))
}

func (c *Client) setRoomStandard(key byte, value any) error {
	return c.setRoomProperties(protocol.Properties{
		Standard: map[byte]any{key: value},
		Custom:   map[string]any{},
	})
}

func (c *Client) setRoomProperties(props protocol.Properties) error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.state != Joined {
		return ErrNotJoined
	}
	if err := c.sendLocked(c.session, protocol.OpSetProperties, []protocol.Param{
		protocol.P(protocol.ParamProperties, props.Encode()),
		protocol.P(protocol.ParamBroadcast, true),
	}); err != nil {
		return err
	}
	changed, _ := c.model.ApplyRoomProps(props)
	if len(changed) > 0 || len(props.Standard) > 0 {
		c.emit(func(h Handler) { h.OnRoomPropertiesChange(changed) })
	}
	return nil
}

// SetActorProperty sets one custom property of the local actor.
func (c *Client) SetActorProperty(key string, value any) error {
	return c.SetActorProperties(map[string]any{key: value})
}

// SetActorProperties sets custom properties of the local actor. Outside a
// room they are stored and sent with the next join.
//
// Postcondition: Returns nil once applied, or an error with nothing changed.
func (c *Client) SetActorProperties(props map[string]any) error {
	custom, err := customProperties(props)
	if err != nil {
		return err
	}
	return c.setLocalProperties(protocol.Properties{Standard: map[byte]any{}, Custom: custom})
}

// SetActorPropertiesOf sets custom properties of the actor numbered nr in
// the joined room, which may be a remote actor.
//
// Precondition: State must be Joined and nr must be in the roster.
// Postcondition: Returns nil once sent and applied, or an error with nothing changed.
func (c *Client) SetActorPropertiesOf(nr int, props map[string]any) error {
	custom, err := customProperties(props)
	if err != nil {
		return err
	}
	update := protocol.Properties{Standard: map[byte]any{}, Custom: custom}

	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.state != Joined {
		return ErrNotJoined
	}
	if _, ok := c.model.Actor(nr); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownActor, nr)
	}
	if err := c.sendLocked(c.session, protocol.OpSetProperties, []protocol.Param{
		protocol.P(protocol.ParamProperties, update.Encode()),
		protocol.P(protocol.ParamBroadcast, true),
		protocol.P(protocol.ParamActorNr, nr),
	}); err != nil {
		return err
	}
	actor, changed, _ := c.model.ApplyActorProps(nr, update)
	if len(changed) > 0 {
		snapshot := actor.Clone()
		c.emit(func(h Handler) { h.OnActorPropertiesChange(snapshot, changed) })
	}
	return nil
}

// SetName changes the local actor's nickname.
func (c *Client) SetName(name string) error {
	return c.setLocalProperties(protocol.Properties{
		Standard: map[byte]any{protocol.ActorPlayerName: name},
		Custom:   map[string]any{},
	})
}

func (c *Client) setLocalProperties(props protocol.Properties) error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	local := c.model.Local()
	if c.state == Joined {
		if err := c.sendLocked(c.session, protocol.OpSetProperties, []protocol.Param{
			protocol.P(protocol.ParamProperties, props.Encode()),
			protocol.P(protocol.ParamBroadcast, true),
			protocol.P(protocol.ParamActorNr, local.Nr),
		}); err != nil {
			return err
		}
	}
	changed := local.Apply(props)
	if c.state == Joined && (len(changed) > 0 || len(props.Standard) > 0) {
		snapshot := local.Clone()
		c.emit(func(h Handler) { h.OnActorPropertiesChange(snapshot, changed) })
	}
	return nil
}

// RaiseEvent sends a custom event to the other actors of the room.
//
// Precondition: State must be Joined and data must be JSON-encodable.
// Postcondition: Returns nil once sent, or an error.
func (c *Client) RaiseEvent(code byte, data any, opts RaiseOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	payload, err := protocol.Normalize(data)
	if err != nil {
		return fmt.Errorf("%w: event data: %w", ErrInvalidOptions, err)
	}
	params := []protocol.Param{protocol.P(protocol.ParamCode, int(code))}
	if payload != nil {
		params = append(params, protocol.P(protocol.ParamData, payload))
	}
	if len(opts.TargetActors) > 0 {
		params = append(params, protocol.P(protocol.ParamActorList, append([]int{}, opts.TargetActors...)))
	} else if opts.Receivers != protocol.ReceiversOthers {
		params = append(params, protocol.P(protocol.ParamReceiverGroup, int(opts.Receivers)))
	}
	if opts.Cache != protocol.CacheDoNotCache {
		params = append(params, protocol.P(protocol.ParamCache, int(opts.Cache)))
	}
	if opts.Group != 0 {
		params = append(params, protocol.P(protocol.ParamGroup, opts.Group))
	}

	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.state != Joined {
		return ErrNotJoined
	}
	if err := c.sendLocked(c.session, protocol.OpRaiseEvent, params); err != nil {
		return err
	}
	c.logger.Debug("event raised", zap.Int("code", int(code)), zap.Int("targets", len(opts.TargetActors)))
	return nil
}

// customProperties validates and normalizes application property values.
func customProperties(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if err := checkCustomKey(k); err != nil {
			return nil, err
		}
		nv, err := protocol.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("%w: property %q: %w", ErrInvalidOptions, k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// Rejoinable reports whether a rejoin token is saved for room.
func (c *Client) Rejoinable(room string) bool {
	_, ok, err := c.tokens.LoadToken(c.baseContext(), c.UserID(), room)
	return err == nil && ok
}
