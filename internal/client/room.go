package client

import (
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/session"
	"github.com/cory-johannsen/matchlink/internal/transport"
)

type requestKind int

const (
	requestCreate requestKind = iota
	requestJoin
	requestJoinRandom
)

func (k requestKind) String() string {
	switch k {
	case requestCreate:
		return "create"
	case requestJoin:
		return "join"
	}
	return "join_random"
}

// roomRequest is a create or join carried from the matchmaker to the
// session server.
type roomRequest struct {
	kind    requestKind
	name    string
	room    RoomOptions
	join    JoinOptions
	random  RandomJoinOptions
	actorNr int
	address string
}

func (r *roomRequest) opCode() byte {
	switch r.kind {
	case requestCreate:
		return protocol.OpCreateGame
	case requestJoin:
		return protocol.OpJoinGame
	}
	return protocol.OpJoinRandomGame
}

// creates reports whether the request may create the room.
func (r *roomRequest) creates() bool {
	return r.kind == requestCreate || (r.kind == requestJoin && r.join.CreateIfNotExists)
}

func (r *roomRequest) joinMode() protocol.JoinMode {
	rejoin := r.actorNr != session.NoActorNr
	switch {
	case rejoin && r.join.CreateIfNotExists:
		return protocol.JoinModeJoinOrRejoin
	case rejoin:
		return protocol.JoinModeRejoinOnly
	case r.join.CreateIfNotExists:
		return protocol.JoinModeCreateIfNotExists
	}
	return protocol.JoinModeDefault
}

// roomParams are the room-creation parameters replayed on both servers.
func (r *roomRequest) roomParams() []protocol.Param {
	o := r.room
	params := []protocol.Param{
		protocol.P(protocol.ParamGameProperties, o.room(r.name).Properties().Encode()),
	}
	if o.EmptyRoomTTL > 0 {
		params = append(params, protocol.P(protocol.ParamEmptyRoomTTL, o.EmptyRoomTTL))
	}
	if o.PlayerTTL > 0 {
		params = append(params, protocol.P(protocol.ParamPlayerTTL, o.PlayerTTL))
	}
	if o.CheckUserOnJoin {
		params = append(params, protocol.P(protocol.ParamCheckUserOnJoin, true))
	}
	if !o.CleanupCacheOnLeave {
		params = append(params, protocol.P(protocol.ParamCleanupCacheOnLeave, false))
	}
	return params
}

func lobbyParams(name string, typ protocol.LobbyType) []protocol.Param {
	var params []protocol.Param
	if name != "" {
		params = append(params, protocol.P(protocol.ParamLobbyName, name))
	}
	if typ != protocol.LobbyDefault {
		params = append(params, protocol.P(protocol.ParamLobbyType, int(typ)))
	}
	return params
}

func (r *roomRequest) matchmakerParams() ([]protocol.Param, error) {
	var params []protocol.Param
	switch r.kind {
	case requestJoinRandom:
		o := r.random
		expected := protocol.NewProperties()
		for k, v := range o.ExpectedCustomProperties {
			nv, err := protocol.Normalize(v)
			if err != nil {
				return nil, fmt.Errorf("%w: expected property %q: %w", ErrInvalidOptions, k, err)
			}
			expected.Custom[k] = nv
		}
		if o.ExpectedMaxPlayers > 0 {
			expected.Standard[protocol.RoomMaxPlayers] = o.ExpectedMaxPlayers
		}
		if !expected.Empty() {
			params = append(params, protocol.P(protocol.ParamGameProperties, expected.Encode()))
		}
		if o.MatchmakingMode != protocol.MatchmakingFillRoom {
			params = append(params, protocol.P(protocol.ParamMatchMakingType, int(o.MatchmakingMode)))
		}
		params = append(params, lobbyParams(o.LobbyName, o.LobbyType)...)
		if o.SQLFilter != "" {
			params = append(params, protocol.P(protocol.ParamData, o.SQLFilter))
		}
		return params, nil
	case requestJoin:
		params = append(params, protocol.P(protocol.ParamRoomName, r.name))
		if mode := r.joinMode(); mode != protocol.JoinModeDefault {
			params = append(params, protocol.P(protocol.ParamJoinMode, int(mode)))
		}
		if r.actorNr != session.NoActorNr {
			params = append(params, protocol.P(protocol.ParamActorNr, r.actorNr))
		}
	default:
		if r.name != "" {
			params = append(params, protocol.P(protocol.ParamRoomName, r.name))
		}
	}
	if r.creates() {
		params = append(params, r.roomParams()...)
		params = append(params, lobbyParams(r.room.LobbyName, r.room.LobbyType)...)
	}
	return params, nil
}

// sessionOperation is the room-entry operation sent once the session
// server has authenticated the client.
func (r *roomRequest) sessionOperation(local *session.Actor) (byte, []protocol.Param) {
	code := protocol.OpJoinGame
	if r.kind == requestCreate {
		code = protocol.OpCreateGame
	}
	params := []protocol.Param{protocol.P(protocol.ParamRoomName, r.name)}
	if r.kind == requestJoin {
		if mode := r.joinMode(); mode != protocol.JoinModeDefault {
			params = append(params, protocol.P(protocol.ParamJoinMode, int(mode)))
		}
		if r.actorNr != session.NoActorNr {
			params = append(params, protocol.P(protocol.ParamActorNr, r.actorNr))
		}
	}
	if r.creates() {
		params = append(params, r.roomParams()...)
	}
	params = append(params,
		protocol.P(protocol.ParamPlayerProperties, local.Properties().Encode()),
		protocol.P(protocol.ParamBroadcast, true),
	)
	return code, params
}

func (c *Client) enterSessionLocked(req *roomRequest) {
	if !c.opts.KeepMatchmakerConnection && c.matchmaker != nil {
		c.matchmaker.Disconnect()
		c.matchmaker = nil
	}
	c.setStateLocked(ConnectingToSession)

	p := c.newPeerLocked(transport.RoleSession, req.address)
	c.session = p
	c.onStatus(p, transport.StatusConnect, func(error) { c.onSessionConnectLocked(p) })
	c.onResponse(p, protocol.OpAuthenticate, c.onSessionAuthLocked)
	c.onResponse(p, protocol.OpCreateGame, c.onSessionJoinLocked)
	c.onResponse(p, protocol.OpJoinGame, c.onSessionJoinLocked)
	c.onEvent(p, protocol.EvJoin, c.onActorJoinLocked)
	c.onEvent(p, protocol.EvLeave, c.onActorLeaveLocked)
	c.onEvent(p, protocol.EvPropertiesChanged, c.onPropertiesChangedLocked)
	c.onEvent(p, protocol.EvDisconnect, c.onServerDisconnectLocked)
	c.onEvent(p, protocol.EvErrorInfo, func(ev protocol.Event) {
		msg, _ := ev.Params.String(protocol.ParamData)
		c.logger.Warn("session server error info", zap.String("info", msg))
	})
	p.OnUnhandledEvent(func(ev protocol.Event) {
		c.mu.Lock()
		defer c.unlockAndFlush()
		if c.current(p) {
			c.onCustomEventLocked(ev)
		}
	})
	c.logger.Info("entering room", zap.String("room", req.name), zap.String("address", req.address))
	if err := p.Connect(c.ctx); err != nil {
		c.failLocked(CodeSessionError, "opening session connection", err)
	}
}

func (c *Client) onSessionConnectLocked(p *transport.Peer) {
	params := c.credentials()
	if c.secret != "" {
		params = append(params, protocol.P(protocol.ParamSecret, c.secret))
	}
	if err := c.sendLocked(p, protocol.OpAuthenticate, params); err != nil {
		c.failLocked(CodeSessionError, "sending session authentication", err)
	}
}

func (c *Client) onSessionAuthLocked(resp protocol.Response) {
	if !resp.OK() {
		c.failLocked(CodeSessionAuthFailed, fmt.Sprintf("session authentication: %s", resp.ErrMsg), nil)
		return
	}
	req := c.pending
	if req == nil {
		c.failLocked(CodeSessionError, "session authenticated without a room request", nil)
		return
	}
	c.adoptIdentityLocked(resp.Params)
	c.setStateLocked(ConnectedToSession)
	code, params := req.sessionOperation(c.model.Local())
	if err := c.sendLocked(c.session, code, params); err != nil {
		c.failLocked(CodeSessionError, "sending room entry", err)
	}
}

func (c *Client) onSessionJoinLocked(resp protocol.Response) {
	req := c.pending
	if req == nil || c.state != ConnectedToSession {
		c.logger.Warn("unexpected room entry response", zap.Int("code", int(resp.Code)))
		return
	}
	if !resp.OK() {
		c.pending = nil
		c.logger.Warn("room entry refused",
			zap.String("room", req.name),
			zap.Int("err_code", resp.ErrCode),
			zap.String("err_msg", resp.ErrMsg),
		)
		errCode, errMsg := resp.ErrCode, resp.ErrMsg
		c.emit(func(h Handler) { h.OnJoinRoomFailed(errCode, errMsg) })
		c.closePeersLocked()
		c.setStateLocked(Error)
		return
	}
	localNr, ok := resp.Params.Int(protocol.ParamActorNr)
	if !ok {
		c.failLocked(CodeSessionError, "room entry response has no actor number", nil)
		return
	}

	room := session.NewRoom(req.name)
	if req.creates() {
		room = req.room.room(req.name)
	}
	room.Address = req.address
	if gp, ok := resp.Params.PropertiesAt(protocol.ParamGameProperties); ok {
		room.Apply(gp)
	}
	actorProps := actorProperties(resp.Params)
	c.model.ApplyJoin(localNr, actorList(resp.Params, actorProps), actorProps)
	c.model.SetRoom(room)
	if master, ok := resp.Params.Int(protocol.ParamMasterClientID); ok {
		room.MasterClientID = master
	}
	c.syncPlayerCountLocked()
	c.pending = nil
	c.setStateLocked(Joined)

	userID, name, token := c.userID, room.Name, strconv.Itoa(localNr)
	ctx := c.ctx
	c.notify.push(func() {
		if err := c.tokens.SaveToken(ctx, userID, name, token); err != nil {
			c.logger.Error("saving rejoin token", zap.String("room", name), zap.Error(err))
		}
	})
	snapshot, createdByMe := room.Clone(), req.kind == requestCreate
	c.logger.Info("joined room",
		zap.String("room", name),
		zap.Int("actor_nr", localNr),
		zap.Int("actors", c.model.Len()),
	)
	c.emit(func(h Handler) { h.OnJoinRoom(snapshot, createdByMe) })
}

// actorProperties reads the actor number to property-object table.
func actorProperties(params protocol.Params) map[int]protocol.Properties {
	raw, _ := params.Map(protocol.ParamPlayerProperties)
	out := make(map[int]protocol.Properties, len(raw))
	for k, v := range raw {
		nr, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out[nr] = protocol.SplitProperties(m)
	}
	return out
}

// actorList returns the response's actor numbers, falling back to the keys
// of the property table in ascending order.
func actorList(params protocol.Params, props map[int]protocol.Properties) []int {
	if nrs, ok := protocol.ToInts(params[protocol.ParamActorList]); ok {
		return nrs
	}
	nrs := make([]int, 0, len(props))
	for nr := range props {
		nrs = append(nrs, nr)
	}
	slices.Sort(nrs)
	return nrs
}

// syncPlayerCountLocked keeps the joined room's player count equal to the
// number of active actors in the roster.
func (c *Client) syncPlayerCountLocked() {
	room := c.model.Room()
	if room == nil {
		return
	}
	active := 0
	for _, a := range c.model.Actors() {
		if !a.Suspended {
			active++
		}
	}
	room.PlayerCount = active
	c.metrics.RoomActors(c.model.Len())
}

func (c *Client) onActorJoinLocked(ev protocol.Event) {
	nr, ok := ev.Params.Int(protocol.ParamActorNr)
	if !ok || c.model.Room() == nil {
		return
	}
	props, _ := ev.Params.PropertiesAt(protocol.ParamPlayerProperties)
	if nr == c.model.Local().Nr {
		c.model.Local().Apply(props)
		return
	}
	actor, _ := c.model.AddActor(nr, props)
	c.syncPlayerCountLocked()
	snapshot := actor.Clone()
	c.emit(func(h Handler) { h.OnActorJoin(snapshot) })
}

func (c *Client) onActorLeaveLocked(ev protocol.Event) {
	nr, ok := ev.Params.Int(protocol.ParamActorNr)
	if !ok {
		return
	}
	suspended, _ := ev.Params.Bool(protocol.ParamIsInactive)
	actor, ok := c.model.RemoveActor(nr, suspended)
	if !ok {
		c.logger.Debug("leave for unknown actor", zap.Int("actor_nr", nr))
		return
	}
	if master, ok := ev.Params.Int(protocol.ParamMasterClientID); ok {
		if room := c.model.Room(); room != nil {
			room.MasterClientID = master
		}
	}
	c.syncPlayerCountLocked()
	snapshot := actor.Clone()
	c.emit(func(h Handler) { h.OnActorLeave(snapshot, suspended) })
}

func (c *Client) onPropertiesChangedLocked(ev protocol.Event) {
	props, ok := ev.Params.PropertiesAt(protocol.ParamProperties)
	if !ok {
		return
	}
	if target, ok := ev.Params.Int(protocol.ParamTargetActorNr); ok && target > 0 {
		actor, changed, ok := c.model.ApplyActorProps(target, props)
		if !ok {
			c.logger.Debug("properties for unknown actor", zap.Int("actor_nr", target))
			return
		}
		if len(changed) == 0 && len(props.Standard) == 0 {
			return
		}
		snapshot := actor.Clone()
		c.emit(func(h Handler) { h.OnActorPropertiesChange(snapshot, changed) })
		return
	}
	changed, ok := c.model.ApplyRoomProps(props)
	if !ok || (len(changed) == 0 && len(props.Standard) == 0) {
		return
	}
	c.emit(func(h Handler) { h.OnRoomPropertiesChange(changed) })
}

func (c *Client) onServerDisconnectLocked(protocol.Event) {
	c.logger.Warn("session server dropped the client")
	c.suspendLocked()
}

func (c *Client) onCustomEventLocked(ev protocol.Event) {
	sender, _ := ev.Params.Int(protocol.ParamActorNr)
	content := ev.Params[protocol.ParamData]
	code := ev.Code
	c.emit(func(h Handler) { h.OnEvent(code, content, sender) })
}

// SuspendRoom drops the session connection while keeping the server-side
// membership for the room's player TTL. The client returns to JoinedLobby
// when the matchmaker connection is still open, otherwise it reconnects.
//
// Postcondition: Returns ErrNotJoined when no session connection exists.
func (c *Client) SuspendRoom() error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.session == nil {
		return ErrNotJoined
	}
	c.suspendLocked()
	return nil
}

// LeaveRoom sends a leave operation, drops the session connection and
// forgets the rejoin token.
//
// Precondition: State must be Joined.
func (c *Client) LeaveRoom() error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.state != Joined {
		return ErrNotJoined
	}
	if err := c.sendLocked(c.session, protocol.OpLeave, []protocol.Param{
		protocol.P(protocol.ParamIsInactive, false),
	}); err != nil {
		c.logger.Warn("sending leave", zap.Error(err))
	}
	userID, name, ctx := c.userID, c.model.Room().Name, c.ctx
	c.suspendLocked()
	c.notify.push(func() {
		if err := c.tokens.DeleteToken(ctx, userID, name); err != nil {
			c.logger.Error("deleting rejoin token", zap.String("room", name), zap.Error(err))
		}
	})
	return nil
}

// suspendLocked drops the session peer, resets the model and returns to the
// lobby.
func (c *Client) suspendLocked() {
	if c.session != nil {
		c.session.Disconnect()
		c.session = nil
	}
	c.pending = nil
	c.leaveModelLocked()

	if c.matchmaker != nil && c.matchmaker.IsConnected() {
		c.setStateLocked(JoinedLobby)
		return
	}
	if c.matchmaker != nil {
		c.matchmaker.Disconnect()
		c.matchmaker = nil
	}
	c.setStateLocked(ConnectingToMatchmaker)
	c.openMatchmakerLocked()
}
