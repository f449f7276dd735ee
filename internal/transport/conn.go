// Package transport frames the protocol's byte traffic. WebSocket
// binary messages give a self-delimiting frame over a reliable stream;
// each Send corresponds to exactly one Recv on the peer.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds each socket write so a stalled peer cannot hold
// the pump, and with it every Send caller, indefinitely.
const writeTimeout = 5 * time.Second

// Conn is a framed bidirectional connection. Writes may come from any
// goroutine; a single writer pump serializes them onto the socket.
// Reads are owned by one goroutine: either the caller of Recv, or the
// internal reader started by SetNonBlocking.
type Conn struct {
	ws      *websocket.Conn
	writeCh chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	inbound chan []byte
	readMu  sync.Mutex
	readErr error
}

func newConn(ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:      ws,
		writeCh: make(chan []byte, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	return c
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Upgrade accepts an inbound HTTP request as a framed connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws), nil
}

// Dial connects to a listening peer at url (ws://host:port/ws).
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws), nil
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues one frame for delivery in order. Returns
// ErrPeerDisconnected once the connection is down.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrPeerDisconnected
	default:
	}
	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrPeerDisconnected
	}
}

// Recv blocks until the next frame arrives. Returns
// ErrPeerDisconnected when the peer closes or the stream breaks. Must
// not be mixed with SetNonBlocking.
func (c *Conn) Recv() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.cancel()
		return nil, ErrPeerDisconnected
	}
	return data, nil
}

// SetNonBlocking moves the connection to non-blocking receive mode:
// an internal reader drains the socket into a buffer and TryRecv polls
// it without waiting.
func (c *Conn) SetNonBlocking() {
	c.inbound = make(chan []byte, 100)
	go func() {
		defer close(c.inbound)
		for {
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				c.readMu.Lock()
				c.readErr = ErrPeerDisconnected
				c.readMu.Unlock()
				c.cancel()
				return
			}
			select {
			case c.inbound <- data:
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// TryRecv returns the next buffered frame if one is ready. ok is false
// when nothing is available. After a disconnect it reports
// ErrPeerDisconnected once the buffer is drained.
func (c *Conn) TryRecv() (data []byte, ok bool, err error) {
	select {
	case data, open := <-c.inbound:
		if !open {
			c.readMu.Lock()
			defer c.readMu.Unlock()
			return nil, false, c.readErr
		}
		return data, true, nil
	default:
		return nil, false, nil
	}
}

// Done is closed when the connection is no longer usable.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

// RemoteAddr describes the peer endpoint, for logging.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
