package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrNoListener is returned by MemoryDialer for URLs nobody handles.
var ErrNoListener = errors.New("no listener")

const pipeBuffer = 256

// Pipe returns two connected in-process Sockets. Closing either end closes both.
func Pipe() (Socket, Socket) {
	ab := make(chan string, pipeBuffer)
	ba := make(chan string, pipeBuffer)
	shared := &pipeState{closed: make(chan struct{})}
	return &pipeSocket{in: ba, out: ab, state: shared}, &pipeSocket{in: ab, out: ba, state: shared}
}

type pipeState struct {
	once   sync.Once
	closed chan struct{}
}

type pipeSocket struct {
	in    <-chan string
	out   chan<- string
	state *pipeState
}

func (s *pipeSocket) ReadMessage(deadline time.Time) (string, error) {
	var expired <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		expired = t.C
	}
	select {
	case msg := <-s.in:
		return msg, nil
	case <-s.state.closed:
		select {
		case msg := <-s.in:
			return msg, nil
		default:
		}
		return "", fmt.Errorf("%w: %w", ErrSocketClosed, net.ErrClosed)
	case <-expired:
		return "", fmt.Errorf("%w: read deadline", ErrSocketTimeout)
	}
}

func (s *pipeSocket) WriteMessage(msg string, deadline time.Time) error {
	select {
	case <-s.state.closed:
		return fmt.Errorf("%w: %w", ErrSocketClosed, net.ErrClosed)
	default:
	}
	var expired <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		expired = t.C
	}
	select {
	case s.out <- msg:
		return nil
	case <-s.state.closed:
		return fmt.Errorf("%w: %w", ErrSocketClosed, net.ErrClosed)
	case <-expired:
		return fmt.Errorf("%w: write deadline", ErrSocketTimeout)
	}
}

func (s *pipeSocket) Close() error {
	s.state.once.Do(func() { close(s.state.closed) })
	return nil
}

// MemoryDialer connects Peers to in-process handlers registered by URL.
type MemoryDialer struct {
	mu       sync.Mutex
	handlers map[string]func(Socket)
}

// NewMemoryDialer returns a MemoryDialer with no handlers.
func NewMemoryDialer() *MemoryDialer {
	return &MemoryDialer{handlers: make(map[string]func(Socket))}
}

// Handle registers h for addr. Each dial runs h on a new goroutine with the
// server end of a fresh Pipe.
func (d *MemoryDialer) Handle(addr string, h func(Socket)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[ResolveURL(addr)] = h
}

// Dial connects to the handler registered for url.
//
// Postcondition: Returns the client end of a Pipe, or an error wrapping
// ErrNoListener.
func (d *MemoryDialer) Dial(ctx context.Context, url string) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	d.mu.Lock()
	h, ok := d.handlers[ResolveURL(url)]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dialing %s: %w", url, ErrNoListener)
	}
	client, server := Pipe()
	go h(server)
	return client, nil
}
