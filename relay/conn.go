package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one leg of a relay session. Read and Write may be called from
// different goroutines; Close must unblock a pending Read.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// statusCloser is implemented by connections that can send a close code.
type statusCloser interface {
	CloseWithStatus(code int, reason string) error
}

const (
	CloseUpstreamUnavailable = websocket.CloseTryAgainLater

	defaultWriteTimeout = 10 * time.Second
)

var errConnClosed = errors.New("connection closed")

// ServerConn adapts a gorilla connection accepted by the gateway.
type ServerConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewServerConn wraps conn. With a non-zero pingInterval the client is
// pinged periodically and must answer within two intervals.
func NewServerConn(conn *websocket.Conn, pingInterval time.Duration) *ServerConn {
	c := &ServerConn{
		conn:         conn,
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
	}

	if pingInterval > 0 {
		wait := 2 * pingInterval
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wait))
		})
		go c.keepalive(pingInterval)
	}
	return c
}

func (c *ServerConn) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (c *ServerConn) Read(ctx context.Context) ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *ServerConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// CloseWithStatus sends a close frame carrying code before closing.
func (c *ServerConn) CloseWithStatus(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) Close() error {
	return c.CloseWithStatus(websocket.CloseNormalClosure, "")
}
