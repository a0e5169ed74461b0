// internal/transport/conn.go
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Conn is one peer connection as a room sees it. Send must not block.
type Conn interface {
	Send([]byte) error
	Close() error
}

// ErrSendBufferFull is returned when a peer does not drain its messages.
var ErrSendBufferFull = errors.New("send buffer full")

var errConnClosed = errors.New("connection closed")

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
	pingInterval = 20 * time.Second
	readLimit    = 1 << 20
)

// wsConn queues outgoing frames for a single writer goroutine.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(ws *websocket.Conn) *wsConn {
	ws.SetReadLimit(readLimit)
	c := &wsConn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *wsConn) Send(b []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// read blocks for the next text frame.
func (c *wsConn) read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

func (c *wsConn) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
	}()
	for {
		select {
		case <-c.done:
			c.drain()
			return
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ping.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// drain flushes frames queued before Close, such as a final error.
func (c *wsConn) drain() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(msg []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, msg)
}
