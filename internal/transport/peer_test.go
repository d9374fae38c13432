package transport

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/matchlink/internal/protocol"
)

const testAddr = "mm.test:9090"

type statusLog struct {
	mu   sync.Mutex
	seen []Status
	ch   chan Status
}

func newStatusLog(p *Peer) *statusLog {
	l := &statusLog{ch: make(chan Status, 32)}
	for _, s := range []Status{
		StatusConnecting, StatusConnect, StatusConnectFailed, StatusDisconnect,
		StatusConnectClosed, StatusError, StatusTimeout,
	} {
		s := s
		p.OnStatus(s, func(Status, error) {
			l.mu.Lock()
			l.seen = append(l.seen, s)
			l.mu.Unlock()
			l.ch <- s
		})
	}
	return l
}

func (l *statusLog) wait(t *testing.T, want Status) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-l.ch:
			if got == want {
				return
			}
		case <-timeout:
			l.mu.Lock()
			defer l.mu.Unlock()
			t.Fatalf("status %q never arrived; saw %v", want, l.seen)
		}
	}
}

func (l *statusLog) all() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.seen...)
}

// serve registers a handler at testAddr and returns the channel receiving
// the server end of each accepted connection.
func serve(d *MemoryDialer) <-chan Socket {
	conns := make(chan Socket, 4)
	d.Handle(testAddr, func(s Socket) { conns <- s })
	return conns
}

func accept(t *testing.T, conns <-chan Socket) Socket {
	t.Helper()
	select {
	case s := <-conns:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func readFrame(t *testing.T, s Socket) string {
	t.Helper()
	msg, err := s.ReadMessage(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	out, err := DecodeFrames(msg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func connectedPeer(t *testing.T, opts ...Option) (*Peer, Socket, *statusLog) {
	t.Helper()
	d := NewMemoryDialer()
	conns := serve(d)
	p := NewPeer(RoleMatchmaker, testAddr, append([]Option{WithDialer(d), WithKeepAlive(0)}, opts...)...)
	log := newStatusLog(p)
	require.NoError(t, p.Connect(context.Background()))
	server := accept(t, conns)
	require.NoError(t, server.WriteMessage(EncodeFrame("sid-1"), time.Time{}))
	log.wait(t, StatusConnect)
	t.Cleanup(p.Disconnect)
	return p, server, log
}

func TestPeer_ConnectHandshake(t *testing.T) {
	p, _, log := connectedPeer(t)
	assert.True(t, p.IsConnected())
	assert.Equal(t, "sid-1", p.SessionID())
	assert.Equal(t, "ws://"+testAddr, p.URL())
	assert.Equal(t, []Status{StatusConnecting, StatusConnect}, log.all())
}

func TestPeer_ConnectTwice(t *testing.T) {
	p, _, _ := connectedPeer(t)
	assert.ErrorIs(t, p.Connect(context.Background()), ErrAlreadyOpen)
}

func TestPeer_SendBeforeConnect(t *testing.T) {
	p := NewPeer(RoleSession, testAddr, WithDialer(NewMemoryDialer()))
	err := p.Send(protocol.OpJoinGame, nil, true, 0)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPeer_SendPairsValidates(t *testing.T) {
	p, _, _ := connectedPeer(t)
	assert.ErrorIs(t, p.SendPairs(protocol.OpJoinGame, protocol.ParamRoomName), protocol.ErrOddPairs)
	assert.ErrorIs(t, p.SendPairs(protocol.OpJoinGame, "room", "r1"), protocol.ErrBadKey)
}

func TestPeer_SendWritesFrame(t *testing.T) {
	p, server, _ := connectedPeer(t)
	require.NoError(t, p.SendPairs(protocol.OpJoinGame, protocol.ParamRoomName, "r1"))
	assert.Equal(t, `~j~{"req":226,"vals":[255,"r1"]}`, readFrame(t, server))
}

func TestPeer_DispatchOrder(t *testing.T) {
	p, server, _ := connectedPeer(t)

	got := make(chan string, 4)
	p.OnEvent(protocol.EvJoin, func(protocol.Event) { got <- "first" })
	p.OnEvent(protocol.EvJoin, func(protocol.Event) { got <- "second" })
	p.OnResponse(protocol.OpJoinGame, func(r protocol.Response) { got <- "response" })

	stream := EncodeFrame(`~j~{"evt":255,"vals":[254,2]}`) + EncodeFrame(`~j~{"res":226,"err":0}`)
	require.NoError(t, server.WriteMessage(stream, time.Time{}))

	for _, want := range []string{"first", "second", "response"} {
		select {
		case s := <-got:
			assert.Equal(t, want, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %s", want)
		}
	}
}

func TestPeer_UnhandledHook(t *testing.T) {
	p, server, _ := connectedPeer(t)

	got := make(chan byte, 1)
	p.OnUnhandledEvent(func(ev protocol.Event) { got <- ev.Code })
	require.NoError(t, server.WriteMessage(EncodeFrame(`~j~{"evt":77}`), time.Time{}))

	select {
	case code := <-got:
		assert.Equal(t, byte(77), code)
	case <-time.After(2 * time.Second):
		t.Fatal("unhandled hook did not fire")
	}
}

func TestPeer_InternalResponseIgnored(t *testing.T) {
	p, server, _ := connectedPeer(t)

	fired := make(chan struct{}, 2)
	p.OnUnhandledEvent(func(protocol.Event) { fired <- struct{}{} })
	p.OnUnhandledResponse(func(protocol.Response) { fired <- struct{}{} })
	require.NoError(t, server.WriteMessage(EncodeFrame(`~j~{"irs":1,"vals":[1,2]}`)+EncodeFrame(`~j~{"evt":5}`), time.Time{}))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("event after internal response not dispatched")
	}
	assert.Empty(t, fired)
}

func TestPeer_DecodeErrorReportsStatus(t *testing.T) {
	_, server, log := connectedPeer(t)
	require.NoError(t, server.WriteMessage(EncodeFrame(`not json`), time.Time{}))
	log.wait(t, StatusError)
}

func TestPeer_ServerCloseIsConnectClosed(t *testing.T) {
	p, server, log := connectedPeer(t)
	require.NoError(t, server.Close())
	log.wait(t, StatusConnectClosed)
	<-p.Done()
	assert.Equal(t, LifecycleClosed, p.Lifecycle())
	assert.ErrorIs(t, p.Send(protocol.OpLeave, nil, true, 0), ErrNotConnected)
}

func TestPeer_DisconnectIsNotUnexpected(t *testing.T) {
	p, _, log := connectedPeer(t)
	p.Disconnect()
	log.wait(t, StatusDisconnect)
	<-p.Done()
	assert.NotContains(t, log.all(), StatusConnectClosed)
	assert.Equal(t, LifecycleClosed, p.Lifecycle())
}

func TestPeer_DisconnectNeverOpened(t *testing.T) {
	p := NewPeer(RoleDirectory, testAddr)
	log := newStatusLog(p)
	p.Disconnect()
	<-p.Done()
	assert.Empty(t, log.all())
}

func TestPeer_DialFailure(t *testing.T) {
	p := NewPeer(RoleDirectory, "nowhere:1", WithDialer(NewMemoryDialer()))
	log := newStatusLog(p)
	require.NoError(t, p.Connect(context.Background()))
	log.wait(t, StatusConnectFailed)
	assert.Equal(t, LifecycleClosed, p.Lifecycle())
}

func TestPeer_ReadTimeout(t *testing.T) {
	_, _, log := connectedPeer(t, WithReadTimeout(200*time.Millisecond))
	log.wait(t, StatusTimeout)
}

func TestPeer_Reconnect(t *testing.T) {
	d := NewMemoryDialer()
	conns := serve(d)
	p := NewPeer(RoleSession, testAddr, WithDialer(d), WithKeepAlive(0))
	log := newStatusLog(p)

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Connect(context.Background()))
		server := accept(t, conns)
		require.NoError(t, server.WriteMessage(EncodeFrame("sid"), time.Time{}))
		log.wait(t, StatusConnect)
		p.Disconnect()
		log.wait(t, StatusDisconnect)
		<-p.Done()
	}
}

func TestPeer_Heartbeat(t *testing.T) {
	p, server, _ := connectedPeer(t)
	p.mu.Lock()
	p.keepAlive = 20 * time.Millisecond
	p.armTimerLocked()
	p.mu.Unlock()

	frame := readFrame(t, server)
	assert.True(t, strings.HasPrefix(frame, `~j~{"irq":1,"vals":[1,`), frame)
	// re-armed after firing
	frame = readFrame(t, server)
	assert.True(t, strings.HasPrefix(frame, `~j~{"irq":1`), frame)
}

func TestPeer_SendDefersHeartbeat(t *testing.T) {
	p, server, _ := connectedPeer(t)
	p.mu.Lock()
	p.keepAlive = 150 * time.Millisecond
	p.armTimerLocked()
	p.mu.Unlock()

	const sends = 20
	for i := 0; i < sends; i++ {
		require.NoError(t, p.SendPairs(protocol.OpJoinGame, protocol.ParamRoomName, "r1"))
		time.Sleep(10 * time.Millisecond)
	}
	for i := 0; i < sends; i++ {
		frame := readFrame(t, server)
		assert.True(t, strings.HasPrefix(frame, `~j~{"req":`), "frame %d: %s", i, frame)
	}

	// idle: the next frame is the heartbeat
	frame := readFrame(t, server)
	assert.True(t, strings.HasPrefix(frame, `~j~{"irq":1`), frame)
}

func TestPeer_StaleHeartbeatIgnored(t *testing.T) {
	p, server, _ := connectedPeer(t)
	p.mu.Lock()
	p.keepAlive = time.Hour
	p.armTimerLocked()
	current := p.timer
	p.mu.Unlock()

	stale := time.NewTimer(time.Hour)
	stale.Stop()
	p.heartbeat(stale)
	_, err := server.ReadMessage(time.Now().Add(50 * time.Millisecond))
	assert.ErrorIs(t, err, ErrSocketTimeout)

	p.heartbeat(current)
	frame := readFrame(t, server)
	assert.True(t, strings.HasPrefix(frame, `~j~{"irq":1`), frame)
}

func TestWithKeepAlive_BelowMinimumDisables(t *testing.T) {
	p := NewPeer(RoleSession, testAddr, WithKeepAlive(999*time.Millisecond))
	assert.Zero(t, p.keepAlive)
	p = NewPeer(RoleSession, testAddr, WithKeepAlive(2*time.Second))
	assert.Equal(t, 2*time.Second, p.keepAlive)
	p = NewPeer(RoleSession, testAddr)
	assert.Equal(t, DefaultKeepAlive, p.keepAlive)
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "ws://h:1", ResolveURL("h:1"))
	assert.Equal(t, "wss://h:1/x", ResolveURL("wss://h:1/x"))
}
