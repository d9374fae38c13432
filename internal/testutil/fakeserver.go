package testutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/transport"
)

// waitTimeout bounds every blocking FakeServer helper.
const waitTimeout = 2 * time.Second

// Responder answers one operation received on conn.
type Responder func(conn *FakeConn, op protocol.Operation)

// FakeServer is a scripted in-process game server reachable through Dialer.
// Each registered address plays one role; operations are recorded and
// answered by the Responder registered for their code.
type FakeServer struct {
	t      *testing.T
	Dialer *transport.MemoryDialer

	mu         sync.Mutex
	responders map[string]map[byte]Responder
	ops        map[string][]protocol.Operation
	taken      map[opKey]int
	conns      map[string][]*FakeConn
	changed    chan struct{}
	sessions   int
}

// NewFakeServer returns a server with no addresses.
func NewFakeServer(t *testing.T) *FakeServer {
	t.Helper()
	return &FakeServer{
		t:          t,
		Dialer:     transport.NewMemoryDialer(),
		responders: make(map[string]map[byte]Responder),
		ops:        make(map[string][]protocol.Operation),
		taken:      make(map[opKey]int),
		conns:      make(map[string][]*FakeConn),
		changed:    make(chan struct{}),
	}
}

// Listen accepts connections at addr. Each accepted connection receives a
// fresh session id before anything else.
func (s *FakeServer) Listen(addr string) {
	s.Dialer.Handle(addr, func(sock transport.Socket) { s.serve(addr, sock) })
}

// On registers r for operations with code at addr, replacing any previous
// responder.
func (s *FakeServer) On(addr string, code byte, r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responders[addr] == nil {
		s.responders[addr] = make(map[byte]Responder)
	}
	s.responders[addr][code] = r
}

// Reply registers a responder that accepts code at addr with the given
// alternating key/value parameters.
func (s *FakeServer) Reply(addr string, code byte, kv ...any) {
	s.On(addr, code, func(conn *FakeConn, op protocol.Operation) {
		conn.Respond(op.Code, protocol.ErrOk, "", kv...)
	})
}

// Refuse registers a responder that rejects code at addr.
func (s *FakeServer) Refuse(addr string, code byte, errCode int, msg string) {
	s.On(addr, code, func(conn *FakeConn, op protocol.Operation) {
		conn.Respond(op.Code, errCode, msg)
	})
}

// Ops returns every operation received at addr so far.
func (s *FakeServer) Ops(addr string) []protocol.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Operation(nil), s.ops[addr]...)
}

type opKey struct {
	addr string
	code byte
}

// WaitOp blocks until an operation with code arrives at addr after the one
// previously returned for the same address and code, or fails the test.
func (s *FakeServer) WaitOp(addr string, code byte) protocol.Operation {
	s.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		s.mu.Lock()
		ops := s.ops[addr]
		key := opKey{addr, code}
		for i := s.taken[key]; i < len(ops); i++ {
			if ops[i].Code == code {
				s.taken[key] = i + 1
				s.mu.Unlock()
				return ops[i]
			}
		}
		changed := s.changed
		s.mu.Unlock()
		select {
		case <-changed:
		case <-deadline:
			s.t.Fatalf("operation %d never arrived at %s; saw %v", code, addr, codes(s.Ops(addr)))
			return protocol.Operation{}
		}
	}
}

// Conn returns the most recent connection at addr, waiting for one.
func (s *FakeServer) Conn(addr string) *FakeConn {
	s.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		s.mu.Lock()
		list := s.conns[addr]
		changed := s.changed
		s.mu.Unlock()
		if len(list) > 0 {
			return list[len(list)-1]
		}
		select {
		case <-changed:
		case <-deadline:
			s.t.Fatalf("nobody connected to %s", addr)
			return nil
		}
	}
}

// Connections returns how many times addr was dialed.
func (s *FakeServer) Connections(addr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[addr])
}

func (s *FakeServer) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *FakeServer) serve(addr string, sock transport.Socket) {
	s.mu.Lock()
	s.sessions++
	conn := &FakeConn{addr: addr, sock: sock, t: s.t}
	s.conns[addr] = append(s.conns[addr], conn)
	id := fmt.Sprintf("session-%d", s.sessions)
	s.notifyLocked()
	s.mu.Unlock()

	if err := conn.write(id); err != nil {
		return
	}
	framer := transport.NewFramer()
	for {
		msg, err := sock.ReadMessage(time.Time{})
		if err != nil {
			return
		}
		payloads, err := framer.Feed(msg)
		if err != nil {
			s.t.Errorf("fake server %s: %v", addr, err)
			return
		}
		for _, payload := range payloads {
			op, ok := decodeOperation(s.t, payload)
			if !ok {
				continue
			}
			s.mu.Lock()
			s.ops[addr] = append(s.ops[addr], op)
			r := s.responders[addr][op.Code]
			s.notifyLocked()
			s.mu.Unlock()
			if r != nil {
				r(conn, op)
			}
		}
	}
}

// decodeOperation parses a client request; heartbeats report false.
func decodeOperation(t *testing.T, payload string) (protocol.Operation, bool) {
	if !strings.HasPrefix(payload, transport.JSONSigil) {
		t.Errorf("fake server: payload is not JSON: %q", payload)
		return protocol.Operation{}, false
	}
	raw, err := protocol.DecodeValue([]byte(payload[len(transport.JSONSigil):]))
	if err != nil {
		t.Errorf("fake server: %v", err)
		return protocol.Operation{}, false
	}
	env, _ := raw.(map[string]any)
	if _, ok := env["irq"]; ok {
		return protocol.Operation{}, false
	}
	code, ok := protocol.ToInt(env["req"])
	if !ok {
		t.Errorf("fake server: no request code in %q", payload)
		return protocol.Operation{}, false
	}
	vals, _ := env["vals"].([]any)
	params, err := protocol.Pairs(vals...)
	if err != nil {
		t.Errorf("fake server: %v", err)
		return protocol.Operation{}, false
	}
	return protocol.Operation{Code: byte(code), Params: params, Reliable: true}, true
}

func codes(ops []protocol.Operation) []byte {
	out := make([]byte, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Code)
	}
	return out
}

// FakeConn is the server end of one client connection.
type FakeConn struct {
	addr string
	sock transport.Socket
	t    *testing.T
	mu   sync.Mutex
}

// Respond writes a response to operation code with alternating key/value
// parameters.
func (c *FakeConn) Respond(code byte, errCode int, msg string, kv ...any) {
	env := map[string]any{"res": int(code), "err": errCode, "vals": c.vals(kv)}
	if msg != "" {
		env["msg"] = msg
	}
	c.send(env)
}

// Event pushes an event with alternating key/value parameters.
func (c *FakeConn) Event(code byte, kv ...any) {
	c.send(map[string]any{"evt": int(code), "vals": c.vals(kv)})
}

// Raw writes payload as one frame without encoding it.
func (c *FakeConn) Raw(payload string) {
	if err := c.write(payload); err != nil {
		c.t.Logf("fake server %s: %v", c.addr, err)
	}
}

// Close drops the connection from the server side.
func (c *FakeConn) Close() {
	_ = c.sock.Close()
}

func (c *FakeConn) vals(kv []any) []any {
	params, err := protocol.Pairs(kv...)
	if err != nil {
		c.t.Errorf("fake server %s: %v", c.addr, err)
		return nil
	}
	return protocol.Flatten(params)
}

func (c *FakeConn) send(env map[string]any) {
	payload, err := transport.EncodeMessage(env)
	if err != nil {
		c.t.Errorf("fake server %s: %v", c.addr, err)
		return
	}
	c.Raw(payload)
}

func (c *FakeConn) write(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.WriteMessage(transport.EncodeFrame(payload), time.Now().Add(waitTimeout))
}
