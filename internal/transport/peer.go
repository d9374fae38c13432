package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/protocol"
)

const (
	// MinKeepAlive is the smallest enabled keep-alive interval. Shorter
	// intervals disable the heartbeat.
	MinKeepAlive = time.Second
	// DefaultKeepAlive is the heartbeat interval used when none is configured.
	DefaultKeepAlive = 3 * time.Second
)

var (
	// ErrNotConnected is returned by Send while the peer has no open connection.
	ErrNotConnected = errors.New("peer not connected")
	// ErrAlreadyOpen is returned by Connect on a peer that is not closed.
	ErrAlreadyOpen = errors.New("peer already open")
)

// Metrics receives transport counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	FrameSent(role string)
	FrameReceived(role string)
	HeartbeatSent(role string)
	DecodeError(role string)
}

type nopMetrics struct{}

func (nopMetrics) FrameSent(string)     {}
func (nopMetrics) FrameReceived(string) {}
func (nopMetrics) HeartbeatSent(string) {}
func (nopMetrics) DecodeError(string)   {}

// Option configures a Peer.
type Option func(*Peer)

// WithDialer sets the dialer. The default is a WebsocketDialer.
func WithDialer(d Dialer) Option {
	return func(p *Peer) { p.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Peer) { p.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Peer) { p.metrics = m }
}

// WithKeepAlive sets the heartbeat interval. Values below MinKeepAlive
// disable the heartbeat.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Peer) {
		if d < MinKeepAlive {
			d = 0
		}
		p.keepAlive = d
	}
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Peer) { p.dialTimeout = d }
}

// WithReadTimeout sets the idle read deadline. Zero waits forever.
func WithReadTimeout(d time.Duration) Option {
	return func(p *Peer) { p.readTimeout = d }
}

// WithWriteTimeout sets the per-message write deadline. Zero waits forever.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *Peer) { p.writeTimeout = d }
}

// SendOptions modify a single send.
type SendOptions struct {
	// AllowBeforeConnect permits writing once the socket is open but
	// before the session id has arrived.
	AllowBeforeConnect bool
}

// Peer owns one logical connection to one server role: framing, keep-alive
// and listener dispatch. Listener callbacks run on the peer's read goroutine,
// in arrival order.
type Peer struct {
	id           string
	role         Role
	url          string
	dialer       Dialer
	logger       *zap.Logger
	metrics      Metrics
	keepAlive    time.Duration
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	now          func() time.Time

	listeners listeners

	mu        sync.Mutex
	lifecycle Lifecycle
	socket    Socket
	sessionID string
	writeErr  error
	timer     *time.Timer
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPeer creates a closed Peer for role at url.
//
// Precondition: url must be a dialable address; bare host:port gets ws://.
// Postcondition: Returns a Peer in LifecycleClosed with no listeners.
func NewPeer(role Role, url string, opts ...Option) *Peer {
	done := make(chan struct{})
	close(done)
	p := &Peer{
		id:        uuid.NewString(),
		role:      role,
		url:       ResolveURL(url),
		dialer:    WebsocketDialer{HandshakeTimeout: 10 * time.Second},
		logger:    zap.NewNop(),
		metrics:   nopMetrics{},
		keepAlive: DefaultKeepAlive,
		now:       time.Now,
		done:      done,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(
		zap.String("role", string(role)),
		zap.String("peer", p.id),
	)
	p.RemoveAll()
	return p
}

// ID returns the peer's unique id.
func (p *Peer) ID() string { return p.id }

// Role returns the server role.
func (p *Peer) Role() Role { return p.role }

// URL returns the resolved server URL.
func (p *Peer) URL() string { return p.url }

// SessionID returns the id announced by the server, or "" before connect.
func (p *Peer) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Lifecycle returns the current connection lifecycle.
func (p *Peer) Lifecycle() Lifecycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifecycle
}

// IsConnected reports whether the session id has arrived and the peer is open.
func (p *Peer) IsConnected() bool {
	return p.Lifecycle() == LifecycleConnected
}

// Done is closed once the peer's connection goroutine has exited.
func (p *Peer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Connect starts opening the connection and returns immediately. Progress
// is reported to status listeners: connecting, then connect or a failure.
//
// Precondition: The peer must be closed.
// Postcondition: Returns nil and the peer is connecting, or ErrAlreadyOpen.
func (p *Peer) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.lifecycle != LifecycleClosed {
		state := p.lifecycle
		p.mu.Unlock()
		return fmt.Errorf("%w: %s peer is %s", ErrAlreadyOpen, p.role, state)
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.lifecycle = LifecycleConnecting
	p.sessionID = ""
	p.writeErr = nil
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	p.logger.Info("connecting", zap.String("url", p.url))
	go p.run(runCtx, done)
	return nil
}

// Disconnect closes the connection. The close is reported as disconnect,
// never as connectClosed. Calling it on a closed peer does nothing.
func (p *Peer) Disconnect() {
	p.mu.Lock()
	if p.lifecycle == LifecycleClosed || p.lifecycle == LifecycleClosing {
		p.mu.Unlock()
		return
	}
	p.lifecycle = LifecycleClosing
	sock := p.socket
	cancel := p.cancel
	p.stopTimerLocked()
	p.mu.Unlock()

	p.logger.Info("disconnecting")
	if cancel != nil {
		cancel()
	}
	if sock != nil {
		_ = sock.Close()
	}
}

// Send writes one operation.
//
// Precondition: The peer must be connected.
// Postcondition: Returns nil once the frame is handed to the socket, or
// ErrNotConnected. Socket write failures surface as status events.
func (p *Peer) Send(code byte, params []protocol.Param, reliable bool, channel int) error {
	return p.SendOperation(protocol.Operation{
		Code:     code,
		Params:   params,
		Reliable: reliable,
		Channel:  channel,
	}, SendOptions{})
}

// SendPairs validates an alternating key/value list and sends it reliably
// on channel 0.
//
// Postcondition: Returns protocol.ErrOddPairs / ErrBadKey for malformed lists.
func (p *Peer) SendPairs(code byte, kv ...any) error {
	params, err := protocol.Pairs(kv...)
	if err != nil {
		return fmt.Errorf("operation %d: %w", code, err)
	}
	return p.Send(code, params, true, 0)
}

// SendOperation writes op honouring opts.
//
// Postcondition: Returns nil once the frame is handed to the socket, an
// encoding error, or ErrNotConnected.
func (p *Peer) SendOperation(op protocol.Operation, opts SendOptions) error {
	payload, err := EncodeOperation(op)
	if err != nil {
		return fmt.Errorf("operation %d: %w", op.Code, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	open := p.lifecycle == LifecycleConnected ||
		(opts.AllowBeforeConnect && p.lifecycle == LifecycleConnecting && p.socket != nil)
	if !open {
		return fmt.Errorf("%w: %s peer is %s", ErrNotConnected, p.role, p.lifecycle)
	}
	p.logger.Debug("sending operation",
		zap.Int("code", int(op.Code)),
		zap.Bool("reliable", op.Reliable),
		zap.Int("channel", op.Channel),
	)
	p.writeLocked(EncodeFrame(payload))
	p.metrics.FrameSent(string(p.role))
	p.armTimerLocked()
	return nil
}

// writeLocked writes one frame. A failed write closes the socket so the
// read goroutine reports the failure.
func (p *Peer) writeLocked(frame string) {
	var deadline time.Time
	if p.writeTimeout > 0 {
		deadline = p.now().Add(p.writeTimeout)
	}
	if err := p.socket.WriteMessage(frame, deadline); err != nil {
		p.logger.Error("write failed", zap.Error(err))
		if p.writeErr == nil {
			p.writeErr = err
		}
		_ = p.socket.Close()
	}
}

func (p *Peer) armTimerLocked() {
	if p.keepAlive <= 0 {
		return
	}
	if p.timer == nil {
		// The callback blocks on p.mu, held here, so t is set before it runs.
		var t *time.Timer
		t = time.AfterFunc(p.keepAlive, func() { p.heartbeat(t) })
		p.timer = t
		return
	}
	p.timer.Reset(p.keepAlive)
}

func (p *Peer) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// heartbeat writes the internal keep-alive request directly on the socket.
// A callback whose timer was replaced by a later connection does nothing.
func (p *Peer) heartbeat(t *time.Timer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lifecycle != LifecycleConnected || p.socket == nil || p.timer != t {
		return
	}
	p.writeLocked(EncodeFrame(EncodeHeartbeat(p.now())))
	p.metrics.HeartbeatSent(string(p.role))
	p.timer.Reset(p.keepAlive)
}

func (p *Peer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	p.emitStatus(StatusConnecting, nil)

	dialCtx := ctx
	if p.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, p.dialTimeout)
		defer cancel()
	}
	sock, err := p.dialer.Dial(dialCtx, p.url)
	if err != nil {
		if p.finish() {
			p.emitStatus(StatusDisconnect, nil)
			return
		}
		if errors.Is(err, ErrSocketTimeout) || errors.Is(err, context.DeadlineExceeded) {
			p.emitStatus(StatusTimeout, err)
			return
		}
		p.emitStatus(StatusConnectFailed, err)
		return
	}

	p.mu.Lock()
	if p.lifecycle == LifecycleClosing {
		p.mu.Unlock()
		_ = sock.Close()
		p.finish()
		p.emitStatus(StatusDisconnect, nil)
		return
	}
	p.socket = sock
	p.mu.Unlock()

	p.readLoop(sock)
}

// finish marks the peer closed and reports whether Disconnect requested it.
func (p *Peer) finish() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	closing := p.lifecycle == LifecycleClosing
	p.lifecycle = LifecycleClosed
	p.socket = nil
	p.stopTimerLocked()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return closing
}

func (p *Peer) readLoop(sock Socket) {
	framer := NewFramer()
	first := true
	for {
		var deadline time.Time
		if p.readTimeout > 0 {
			deadline = p.now().Add(p.readTimeout)
		}
		msg, err := sock.ReadMessage(deadline)
		if err != nil {
			p.closed(sock, err)
			return
		}

		payloads, ferr := framer.Feed(msg)
		for _, payload := range payloads {
			p.metrics.FrameReceived(string(p.role))
			if first {
				first = false
				p.opened(payload)
				continue
			}
			p.handlePayload(payload)
		}
		if ferr != nil {
			p.decodeFailed(msg, ferr)
		}
	}
}

func (p *Peer) opened(sessionID string) {
	p.mu.Lock()
	if p.lifecycle != LifecycleConnecting {
		p.mu.Unlock()
		return
	}
	p.lifecycle = LifecycleConnected
	p.sessionID = sessionID
	p.armTimerLocked()
	p.mu.Unlock()

	p.logger.Info("connected", zap.String("session_id", sessionID))
	p.emitStatus(StatusConnect, nil)
}

func (p *Peer) closed(sock Socket, err error) {
	p.mu.Lock()
	writeErr := p.writeErr
	p.mu.Unlock()
	_ = sock.Close()

	switch {
	case p.finish():
		p.emitStatus(StatusDisconnect, nil)
	case writeErr != nil:
		p.emitStatus(StatusError, writeErr)
	case errors.Is(err, ErrSocketTimeout):
		p.emitStatus(StatusTimeout, err)
	case errors.Is(err, ErrSocketClosed):
		p.emitStatus(StatusConnectClosed, err)
	default:
		p.emitStatus(StatusError, err)
	}
}

func (p *Peer) handlePayload(payload string) {
	in, err := DecodeEnvelope(payload)
	if err != nil {
		p.decodeFailed(payload, err)
		return
	}
	switch in.Kind {
	case KindInternal:
		p.logger.Debug("internal response", zap.Any("envelope", in.Internal))
	case KindEvent:
		p.logger.Debug("event", zap.Int("code", int(in.Event.Code)))
		p.dispatchEvent(in.Event)
	case KindResponse:
		p.logger.Debug("response",
			zap.Int("code", int(in.Response.Code)),
			zap.Int("err_code", in.Response.ErrCode),
		)
		p.dispatchResponse(in.Response)
	}
}

func (p *Peer) decodeFailed(payload string, err error) {
	p.logger.Error("decoding inbound message", zap.String("payload", head(payload)), zap.Error(err))
	p.metrics.DecodeError(string(p.role))
	p.emitStatus(StatusError, err)
}
