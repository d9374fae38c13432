package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrSocketClosed marks a read or write on a connection the remote end closed.
	ErrSocketClosed = errors.New("socket closed")
	// ErrSocketTimeout marks an I/O deadline that expired.
	ErrSocketTimeout = errors.New("socket timeout")
)

// Socket is one ordered, bidirectional text-message connection.
// ReadMessage is called from a single goroutine; WriteMessage calls are
// serialized by the Peer.
type Socket interface {
	// ReadMessage blocks for the next message. A zero deadline means none.
	ReadMessage(deadline time.Time) (string, error)
	// WriteMessage sends one text message. A zero deadline means none.
	WriteMessage(msg string, deadline time.Time) error
	// Close releases the connection; it unblocks a pending ReadMessage.
	Close() error
}

// Dialer opens Sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// ResolveURL turns a server address into a dialable URL. Bare "host:port"
// addresses get the ws:// scheme.
func ResolveURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "ws://" + addr
}

// WebsocketDialer dials servers over gorilla/websocket.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the opening handshake; zero means no limit.
	HandshakeTimeout time.Duration
	// ReadLimit caps a single inbound message; zero means no limit.
	ReadLimit int64
	// Subprotocols are offered during the handshake.
	Subprotocols []string
}

// Dial opens a websocket connection to url.
//
// Postcondition: Returns an open Socket, or an error wrapping ErrSocketTimeout
// when the handshake deadline expired.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Socket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		Subprotocols:     d.Subprotocols,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, classify(err))
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsSocket{conn: conn}, nil
}

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) ReadMessage(deadline time.Time) (string, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return "", classify(err)
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return "", classify(err)
	}
	return string(data), nil
}

func (s *wsSocket) WriteMessage(msg string, deadline time.Time) error {
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return classify(err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return classify(err)
	}
	return nil
}

func (s *wsSocket) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// classify maps transport errors onto ErrSocketClosed / ErrSocketTimeout.
func classify(err error) error {
	var closeErr *websocket.CloseError
	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrSocketTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrSocketTimeout, err)
	case errors.As(err, &closeErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed), errors.Is(err, websocket.ErrCloseSent):
		return fmt.Errorf("%w: %w", ErrSocketClosed, err)
	}
	return err
}
