// Package client drives the directory, matchmaker and session connections
// of one player through the connect, lobby and room workflow.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/session"
	"github.com/cory-johannsen/matchlink/internal/transport"
)

// Metrics receives client and transport counters.
type Metrics interface {
	transport.Metrics
	StateChanged(from, to string)
	ClientError(code int)
	RoomActors(n int)
}

type nopMetrics struct{}

func (nopMetrics) FrameSent(string)            {}
func (nopMetrics) FrameReceived(string)        {}
func (nopMetrics) HeartbeatSent(string)        {}
func (nopMetrics) DecodeError(string)          {}
func (nopMetrics) StateChanged(string, string) {}
func (nopMetrics) ClientError(int)             {}
func (nopMetrics) RoomActors(int)              {}

// Option configures a Client.
type Option func(*Client)

// WithHandler sets the callback receiver.
func WithHandler(h Handler) Option {
	return func(c *Client) { c.handler = h }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTransportLogger sets the logger handed to every peer. It defaults to
// the client logger.
func WithTransportLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.wireLog = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTokenStore sets where rejoin tokens are kept. The default is in memory.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.tokens = s }
}

// WithDialer sets the dialer used by every peer.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client is the connection orchestrator. All methods are safe for
// concurrent use.
type Client struct {
	opts    Options
	handler Handler
	logger  *zap.Logger
	wireLog *zap.Logger
	metrics Metrics
	tokens  TokenStore
	dialer  transport.Dialer
	notify  notifier

	mu             sync.Mutex
	ctx            context.Context
	state          State
	userID         string
	secret         string
	region         string
	matchmakerAddr string
	directory      *transport.Peer
	matchmaker     *transport.Peer
	session        *transport.Peer
	pending        *roomRequest
	lobby          *session.Lobby
	model          *session.Model
}

// New builds an Uninitialized client.
//
// Precondition: opts must pass Validate.
// Postcondition: Returns a client whose model holds only the local actor.
func New(opts Options, options ...Option) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		opts:    opts,
		handler: NopHandler{},
		logger:  zap.NewNop(),
		metrics: nopMetrics{},
		tokens:  NewMemoryTokenStore(),
		ctx:     context.Background(),
		state:   Uninitialized,
		userID:  opts.UserID,
		lobby:   session.NewLobby(),
	}
	for _, o := range options {
		o(c)
	}
	if c.userID == "" {
		c.userID = uuid.NewString()
	}
	if c.wireLog == nil {
		c.wireLog = c.logger
	}
	c.wireLog = c.wireLog.With(zap.String("user_id", c.userID))
	c.logger = c.logger.With(zap.String("component", "client"), zap.String("user_id", c.userID))

	local := session.NewActor(opts.NickName, session.NoActorNr, true)
	local.UserID = c.userID
	c.model = session.NewModel(local)
	return c, nil
}

// State returns the current workflow state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the player's id, possibly reassigned by the server.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// LocalActor returns a copy of the local actor.
func (c *Client) LocalActor() *session.Actor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.Local().Clone()
}

// Room returns a copy of the joined room, or nil.
func (c *Client) Room() *session.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r := c.model.Room(); r != nil {
		return r.Clone()
	}
	return nil
}

// Actors returns copies of the roster in join order.
func (c *Client) Actors() []*session.Actor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneActors(c.model.Actors())
}

// LobbyRooms returns copies of the matchmaker's room listing.
func (c *Client) LobbyRooms() []*session.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lobby.Rooms()
}

// Snapshot is a point-in-time summary of the client.
type Snapshot struct {
	State      string `json:"state"`
	UserID     string `json:"user_id"`
	Room       string `json:"room,omitempty"`
	ActorNr    int    `json:"actor_nr"`
	Actors     int    `json:"actors"`
	LobbyRooms int    `json:"lobby_rooms"`
}

// Snapshot summarizes the client for status reporting.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:      c.state.String(),
		UserID:     c.userID,
		ActorNr:    c.model.Local().Nr,
		Actors:     c.model.Len(),
		LobbyRooms: c.lobby.Len(),
	}
	if r := c.model.Room(); r != nil {
		s.Room = r.Name
	}
	return s
}

// Request moves to state to when the edge is legal. An illegal request
// returns ErrIllegalTransition, or is logged and ignored when tolerant.
//
// Postcondition: State is to on success and unchanged otherwise.
func (c *Client) Request(to State, tolerant bool) error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	return c.transitionLocked(to, tolerant)
}

// Disconnect closes every peer, drops the room and forces Disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.unlockAndFlush()
	c.logger.Info("disconnecting")
	c.closePeersLocked()
	c.pending = nil
	c.lobby.Clear()
	c.leaveModelLocked()
	c.setStateLocked(Disconnected)
}

func (c *Client) unlockAndFlush() {
	c.mu.Unlock()
	c.notify.flush()
}

func (c *Client) transitionLocked(to State, tolerant bool) error {
	if err := CheckTransition(c.state, to); err != nil {
		if tolerant {
			c.logger.Warn("ignoring transition", zap.Error(err))
			return nil
		}
		return err
	}
	c.setStateLocked(to)
	return nil
}

// setStateLocked moves the workflow without consulting the transition table.
func (c *Client) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.logger.Info("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	c.metrics.StateChanged(from.String(), to.String())
	c.emit(func(h Handler) { h.OnStateChange(from, to) })
}

func (c *Client) emit(fn func(h Handler)) {
	h := c.handler
	c.notify.push(func() { fn(h) })
}

// failLocked tears everything down and reports a stage-scoped error.
func (c *Client) failLocked(code int, msg string, err error) {
	fields := []zap.Field{zap.Int("code", code), zap.String("message", msg)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Error("client error", fields...)
	c.metrics.ClientError(code)
	c.closePeersLocked()
	c.pending = nil
	c.leaveModelLocked()
	c.setStateLocked(Error)
	e := &StageError{Code: code, Message: msg, Err: err}
	c.emit(func(h Handler) { h.OnError(e) })
}

// leaveModelLocked resets the model and reports the room as left when one
// was joined.
func (c *Client) leaveModelLocked() {
	inRoom := c.model.Room() != nil
	c.model.Reset()
	c.metrics.RoomActors(0)
	if inRoom {
		c.emit(func(h Handler) { h.OnLeaveRoom() })
	}
}

func (c *Client) closePeersLocked() {
	for _, p := range []**transport.Peer{&c.directory, &c.matchmaker, &c.session} {
		if *p != nil {
			(*p).Disconnect()
			*p = nil
		}
	}
}

func (c *Client) current(p *transport.Peer) bool {
	switch p.Role() {
	case transport.RoleDirectory:
		return c.directory == p
	case transport.RoleMatchmaker:
		return c.matchmaker == p
	case transport.RoleSession:
		return c.session == p
	}
	return false
}

func (c *Client) newPeerLocked(role transport.Role, addr string) *transport.Peer {
	opts := []transport.Option{
		transport.WithLogger(c.wireLog),
		transport.WithMetrics(c.metrics),
		transport.WithDialTimeout(c.opts.DialTimeout),
		transport.WithReadTimeout(c.opts.ReadTimeout),
		transport.WithWriteTimeout(c.opts.WriteTimeout),
	}
	if c.opts.KeepAlive != 0 {
		opts = append(opts, transport.WithKeepAlive(c.opts.KeepAlive))
	}
	if c.dialer != nil {
		opts = append(opts, transport.WithDialer(c.dialer))
	}
	p := transport.NewPeer(role, addr, opts...)
	for _, status := range []transport.Status{
		transport.StatusError,
		transport.StatusConnectFailed,
		transport.StatusTimeout,
		transport.StatusConnectClosed,
	} {
		status := status
		c.onStatus(p, status, func(err error) {
			c.failLocked(statusCode(role, status), fmt.Sprintf("%s connection: %s", role, status), err)
		})
	}
	p.OnUnhandledResponse(func(resp protocol.Response) {
		c.mu.Lock()
		defer c.unlockAndFlush()
		if c.current(p) {
			c.emit(func(h Handler) { h.OnOperationResponse(resp) })
		}
	})
	return p
}

// onStatus registers fn to run under the client lock while p is current.
func (c *Client) onStatus(p *transport.Peer, status transport.Status, fn func(err error)) {
	p.OnStatus(status, func(_ transport.Status, err error) {
		c.mu.Lock()
		defer c.unlockAndFlush()
		if !c.current(p) {
			c.logger.Debug("stale status", zap.String("role", string(p.Role())), zap.String("status", string(status)))
			return
		}
		fn(err)
	})
}

// onResponse registers fn for code; every response is also reported
// through OnOperationResponse.
func (c *Client) onResponse(p *transport.Peer, code byte, fn func(resp protocol.Response)) {
	p.OnResponse(code, func(resp protocol.Response) {
		c.mu.Lock()
		defer c.unlockAndFlush()
		if !c.current(p) {
			c.logger.Debug("stale response", zap.String("role", string(p.Role())), zap.Int("code", int(code)))
			return
		}
		c.emit(func(h Handler) { h.OnOperationResponse(resp) })
		fn(resp)
	})
}

func (c *Client) onEvent(p *transport.Peer, code byte, fn func(ev protocol.Event)) {
	p.OnEvent(code, func(ev protocol.Event) {
		c.mu.Lock()
		defer c.unlockAndFlush()
		if !c.current(p) {
			c.logger.Debug("stale event", zap.String("role", string(p.Role())), zap.Int("code", int(code)))
			return
		}
		fn(ev)
	})
}

// sendLocked writes one reliable operation on p.
func (c *Client) sendLocked(p *transport.Peer, code byte, params []protocol.Param) error {
	if p == nil {
		return fmt.Errorf("operation %d: %w", code, transport.ErrNotConnected)
	}
	return p.Send(code, params, true, 0)
}

// credentials are the application identity sent with authentication.
func (c *Client) credentials() []protocol.Param {
	return []protocol.Param{
		protocol.P(protocol.ParamAppVersion, c.opts.AppVersion),
		protocol.P(protocol.ParamApplicationID, c.opts.AppID),
		protocol.P(protocol.ParamUserID, c.userID),
	}
}

func cloneActors(actors []*session.Actor) []*session.Actor {
	out := make([]*session.Actor, 0, len(actors))
	for _, a := range actors {
		out = append(out, a.Clone())
	}
	return out
}
