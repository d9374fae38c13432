package client

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/session"
	"github.com/cory-johannsen/matchlink/internal/transport"
)

// Connect opens the matchmaker connection at Options.MatchmakerAddress.
// Progress is reported through OnStateChange.
//
// Precondition: State must be Uninitialized, Disconnected or Error.
// Postcondition: Returns nil with the state ConnectingToMatchmaker, or an error.
func (c *Client) Connect(ctx context.Context) error {
	if c.opts.MatchmakerAddress == "" {
		return fmt.Errorf("%w: no matchmaker address; use ConnectToRegion", ErrInvalidOptions)
	}
	c.mu.Lock()
	defer c.unlockAndFlush()
	if err := c.transitionLocked(ConnectingToMatchmaker, false); err != nil {
		return err
	}
	c.ctx = ctx
	c.secret = ""
	c.matchmakerAddr = c.opts.MatchmakerAddress
	c.openMatchmakerLocked()
	return nil
}

// RequestLobbyStats asks the matchmaker for lobby statistics; they arrive
// through OnLobbyStats.
func (c *Client) RequestLobbyStats() error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.matchmaker == nil || !c.matchmaker.IsConnected() {
		return ErrNotInLobby
	}
	return c.sendLocked(c.matchmaker, protocol.OpLobbyStats, nil)
}

func (c *Client) openMatchmakerLocked() {
	p := c.newPeerLocked(transport.RoleMatchmaker, c.matchmakerAddr)
	c.matchmaker = p
	c.onStatus(p, transport.StatusConnect, func(error) { c.onMatchmakerConnectLocked(p) })
	c.onResponse(p, protocol.OpAuthenticate, c.onMatchmakerAuthLocked)
	c.onResponse(p, protocol.OpJoinLobby, c.onJoinLobbyLocked)
	c.onResponse(p, protocol.OpCreateGame, c.onMatchmakerRoomLocked)
	c.onResponse(p, protocol.OpJoinGame, c.onMatchmakerRoomLocked)
	c.onResponse(p, protocol.OpJoinRandomGame, c.onMatchmakerRoomLocked)
	c.onResponse(p, protocol.OpLobbyStats, c.onLobbyStatsResponseLocked)
	c.onEvent(p, protocol.EvGameList, c.onRoomListLocked)
	c.onEvent(p, protocol.EvGameListUpdate, c.onRoomListUpdateLocked)
	c.onEvent(p, protocol.EvAppStats, c.onAppStatsLocked)
	c.onEvent(p, protocol.EvLobbyStats, c.onLobbyStatsEventLocked)
	if err := p.Connect(c.ctx); err != nil {
		c.failLocked(CodeMatchmakerError, "opening matchmaker connection", err)
	}
}

func (c *Client) onMatchmakerConnectLocked(p *transport.Peer) {
	var params []protocol.Param
	if c.secret != "" {
		params = append(params, protocol.P(protocol.ParamSecret, c.secret))
	} else {
		params = c.credentials()
		if ca := c.opts.CustomAuth; ca != nil {
			params = append(params, protocol.P(protocol.ParamClientAuthenticationType, int(ca.Type)))
			if ca.Params != "" {
				params = append(params, protocol.P(protocol.ParamClientAuthenticationParams, ca.Params))
			}
			if ca.Data != nil {
				params = append(params, protocol.P(protocol.ParamClientAuthenticationData, ca.Data))
			}
		}
	}
	if c.opts.LobbyStats {
		params = append(params, protocol.P(protocol.ParamLobbyStats, true))
	}
	if err := c.sendLocked(p, protocol.OpAuthenticate, params); err != nil {
		c.failLocked(CodeMatchmakerError, "sending matchmaker authentication", err)
	}
}

func (c *Client) onMatchmakerAuthLocked(resp protocol.Response) {
	if !resp.OK() {
		c.failLocked(CodeMatchmakerAuthFailed, fmt.Sprintf("matchmaker authentication: %s", resp.ErrMsg), nil)
		return
	}
	c.adoptIdentityLocked(resp.Params)
	c.setStateLocked(ConnectedToMatchmaker)

	if !c.opts.AutoJoinLobby {
		c.setStateLocked(JoinedLobby)
		return
	}
	var params []protocol.Param
	if c.opts.LobbyName != "" {
		params = append(params, protocol.P(protocol.ParamLobbyName, c.opts.LobbyName))
	}
	if c.opts.LobbyType != protocol.LobbyDefault {
		params = append(params, protocol.P(protocol.ParamLobbyType, int(c.opts.LobbyType)))
	}
	if err := c.sendLocked(c.matchmaker, protocol.OpJoinLobby, params); err != nil {
		c.failLocked(CodeMatchmakerError, "sending join lobby", err)
	}
}

func (c *Client) onJoinLobbyLocked(resp protocol.Response) {
	if !resp.OK() {
		c.logger.Warn("join lobby failed", zap.Int("err_code", resp.ErrCode), zap.String("err_msg", resp.ErrMsg))
		return
	}
	c.lobby.Clear()
	if c.state == ConnectedToMatchmaker {
		c.setStateLocked(JoinedLobby)
	}
	c.emit(func(h Handler) { h.OnJoinLobby() })
}

func (c *Client) onRoomListLocked(ev protocol.Event) {
	rooms := c.lobby.ApplySnapshot(roomListing(ev.Params))
	c.logger.Debug("room list", zap.Int("rooms", len(rooms)))
	c.emit(func(h Handler) { h.OnRoomList(rooms) })
}

func (c *Client) onRoomListUpdateLocked(ev protocol.Event) {
	added, updated, removed := c.lobby.ApplyDelta(roomListing(ev.Params))
	rooms := c.lobby.Rooms()
	c.logger.Debug("room list update",
		zap.Int("added", len(added)),
		zap.Int("updated", len(updated)),
		zap.Int("removed", len(removed)),
	)
	c.emit(func(h Handler) { h.OnRoomListUpdate(rooms, added, updated, removed) })
}

func (c *Client) onAppStatsLocked(ev protocol.Event) {
	var stats AppStats
	stats.PeerCount, _ = ev.Params.Int(protocol.ParamPeerCount)
	stats.MasterPeerCount, _ = ev.Params.Int(protocol.ParamMasterPeerCount)
	stats.GameCount, _ = ev.Params.Int(protocol.ParamGameCount)
	c.emit(func(h Handler) { h.OnAppStats(stats) })
}

func (c *Client) onLobbyStatsResponseLocked(resp protocol.Response) {
	if resp.OK() {
		c.emitLobbyStatsLocked(resp.Params)
	}
}

func (c *Client) onLobbyStatsEventLocked(ev protocol.Event) {
	c.emitLobbyStatsLocked(ev.Params)
}

func (c *Client) emitLobbyStatsLocked(params protocol.Params) {
	names, _ := protocol.ToStrings(params[protocol.ParamLobbyName])
	types, _ := protocol.ToInts(params[protocol.ParamLobbyType])
	peers, _ := protocol.ToInts(params[protocol.ParamPeerCount])
	games, _ := protocol.ToInts(params[protocol.ParamGameCount])
	stats := make([]LobbyStats, 0, len(names))
	for i, name := range names {
		s := LobbyStats{Name: name}
		if i < len(types) {
			s.Type = protocol.LobbyType(types[i])
		}
		if i < len(peers) {
			s.PeerCount = peers[i]
		}
		if i < len(games) {
			s.GameCount = games[i]
		}
		stats = append(stats, s)
	}
	c.emit(func(h Handler) { h.OnLobbyStats(stats) })
}

// roomListing reads the name to property-object table of a room list event.
func roomListing(params protocol.Params) map[string]protocol.Properties {
	raw, _ := params.Map(protocol.ParamGameList)
	out := make(map[string]protocol.Properties, len(raw))
	for name, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out[name] = protocol.SplitProperties(m)
	}
	return out
}

// CreateRoom asks the matchmaker to create name, then moves to the session
// server it assigns. An empty name lets the server pick one.
//
// Precondition: State must be JoinedLobby.
// Postcondition: Returns nil once the request is sent, or an error.
func (c *Client) CreateRoom(name string, opts RoomOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return c.startRoomRequest(&roomRequest{
		kind:    requestCreate,
		name:    name,
		room:    opts,
		actorNr: session.NoActorNr,
	})
}

// JoinRoom asks the matchmaker for room name. With CreateIfNotExists the
// room is created from ropts when missing; with Rejoin the saved actor
// number is replayed.
//
// Precondition: State must be JoinedLobby.
// Postcondition: Returns nil once the request is sent, or an error; a rejoin
// with no saved token returns ErrNoRejoinToken.
func (c *Client) JoinRoom(name string, jopts JoinOptions, ropts RoomOptions) error {
	if name == "" {
		return fmt.Errorf("%w: room name must not be empty", ErrInvalidOptions)
	}
	if jopts.CreateIfNotExists {
		if err := ropts.Validate(); err != nil {
			return err
		}
	}
	req := &roomRequest{
		kind:    requestJoin,
		name:    name,
		room:    ropts,
		join:    jopts,
		actorNr: session.NoActorNr,
	}
	if jopts.Rejoin {
		token := jopts.Token
		if token == "" {
			var found bool
			var err error
			token, found, err = c.tokens.LoadToken(c.baseContext(), c.UserID(), name)
			if err != nil {
				return fmt.Errorf("loading rejoin token: %w", err)
			}
			if !found {
				return fmt.Errorf("%w: room %q", ErrNoRejoinToken, name)
			}
		}
		nr, err := strconv.Atoi(token)
		if err != nil || nr <= 0 {
			return fmt.Errorf("%w: rejoin token %q is not an actor number", ErrInvalidOptions, token)
		}
		req.actorNr = nr
	}
	return c.startRoomRequest(req)
}

// RejoinRoom joins name again with the saved rejoin token.
func (c *Client) RejoinRoom(name string) error {
	return c.JoinRoom(name, JoinOptions{Rejoin: true}, DefaultRoomOptions())
}

// JoinRandomRoom asks the matchmaker for any room matching opts.
//
// Precondition: State must be JoinedLobby.
// Postcondition: Returns nil once the request is sent, or an error.
func (c *Client) JoinRandomRoom(opts RandomJoinOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return c.startRoomRequest(&roomRequest{
		kind:    requestJoinRandom,
		random:  opts,
		actorNr: session.NoActorNr,
	})
}

func (c *Client) startRoomRequest(req *roomRequest) error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if err := CheckTransition(c.state, ConnectingToSession); err != nil {
		return err
	}
	if c.pending != nil {
		return ErrRequestPending
	}
	if c.matchmaker == nil {
		return ErrNotInLobby
	}
	params, err := req.matchmakerParams()
	if err != nil {
		return err
	}
	if err := c.sendLocked(c.matchmaker, req.opCode(), params); err != nil {
		return err
	}
	c.logger.Info("room requested", zap.String("kind", req.kind.String()), zap.String("room", req.name))
	c.pending = req
	return nil
}

func (c *Client) onMatchmakerRoomLocked(resp protocol.Response) {
	req := c.pending
	if req == nil || req.opCode() != resp.Code || c.session != nil {
		c.logger.Warn("unexpected room response", zap.Int("code", int(resp.Code)))
		return
	}
	if !resp.OK() {
		c.pending = nil
		c.logger.Warn("room request refused",
			zap.Int("err_code", resp.ErrCode),
			zap.String("err_msg", resp.ErrMsg),
		)
		return
	}
	addr, ok := resp.Params.String(protocol.ParamAddress)
	if !ok || addr == "" {
		c.failLocked(CodeMatchmakerError, "room response has no session address", nil)
		return
	}
	if name, ok := resp.Params.String(protocol.ParamRoomName); ok && name != "" {
		req.name = name
	}
	if s, ok := resp.Params.String(protocol.ParamSecret); ok && s != "" {
		c.secret = s
	}
	req.address = addr
	c.enterSessionLocked(req)
}

func (c *Client) baseContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}
