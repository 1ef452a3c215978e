package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

var errConnClosed = errors.New("connection closed")
var errConnStalled = errors.New("send buffer full")

type Conn struct {
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
	code string
}

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps a WS connection bound to a room code
func NewConn(ws *websocket.Conn, code string) *Conn {
	return &Conn{
		ws:   ws,
		code: code,
		out:  make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// Send queues a frame for delivery. It fails if the connection is closed
// or the write buffer stays full past the timeout; either way the caller
// should treat the connection as dead.
func (c *Conn) Send(b []byte, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case c.out <- b:
		return nil
	case <-c.done:
		return errConnClosed
	case <-t.C:
		return errConnStalled
	}
}

// Read blocks until it receives a text/binary message
// Returns false if connection is closed
func (c *Conn) Read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, true
		}
	}
}

// WriteLoop sends outbound frames + periodic pings.
// Exits when the connection dies or ctx is cancelled.
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			if err := c.ws.Write(ctx, websocket.MessageText, b); err != nil {
				c.markClosed()
				return
			}
		case <-t.C:
			if err := c.ws.Ping(ctx); err != nil {
				c.markClosed()
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Done is closed once the connection is unusable.
func (c *Conn) Done() <-chan struct{} { return c.done }

// markClosed flags the connection dead without touching the socket.
func (c *Conn) markClosed() {
	c.once.Do(func() { close(c.done) })
}

// Close marks the connection dead and closes the socket normally.
func (c *Conn) Close() error {
	c.markClosed()
	if c.ws == nil {
		return nil
	}
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}
