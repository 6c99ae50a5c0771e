package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrClosed = errors.New("websocket closed")

const (
	defaultDialTimeout = 10 * time.Second
	closeTimeout       = time.Second
	queueSize          = 1000
)

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	Logger      *slog.Logger
}

// Client is a client-side websocket connection. Text and binary payloads
// are pulled with Read; writes are queued and flushed by a single writer
// goroutine so frame order is preserved.
type Client struct {
	conn net.Conn
	src  io.Reader

	in         chan []byte
	out        chan wsutil.Message
	done       chan struct{}
	writerDone chan struct{}

	doneOnce  sync.Once
	closeOnce sync.Once
	err       error
	closeErr  error

	logger *slog.Logger
}

func (c *Client) setDone(err error) {
	c.doneOnce.Do(func() {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrClosed
		}
		c.err = err
		close(c.done)
	})
}

// Done is closed once the connection is no longer usable.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, nil while it is open.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Read blocks until the next text or binary payload arrives.
func (c *Client) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		// deliver what was received before the connection went away
		select {
		case data := <-c.in:
			return data, nil
		default:
			return nil, c.err
		}
	}
}

// Write queues a text frame.
func (c *Client) Write(ctx context.Context, data []byte) error {
	return c.write(ctx, ws.OpText, data)
}

func (c *Client) WriteBinary(ctx context.Context, data []byte) error {
	return c.write(ctx, ws.OpBinary, data)
}

func (c *Client) Ping(ctx context.Context, data []byte) error {
	return c.write(ctx, ws.OpPing, data)
}

func (c *Client) write(ctx context.Context, opcode ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return c.err
	default:
	}
	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
		return nil
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close sends a normal closure frame and tears the connection down. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		msg := wsutil.Message{OpCode: ws.OpClose, Payload: ws.NewCloseFrameBody(ws.StatusNormalClosure, "closing")}
		timer := time.NewTimer(closeTimeout)
		defer timer.Stop()

		select {
		case c.out <- msg:
			select {
			case <-c.writerDone:
			case <-timer.C:
			}
		case <-c.writerDone:
		case <-timer.C:
		}

		c.setDone(ErrClosed)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Client) readLoop() {
	defer func() {
		select {
		case <-c.writerDone:
		case <-time.After(closeTimeout):
		}
		_ = c.conn.Close()
	}()

	for {
		messages, err := wsutil.ReadServerMessage(c.src, nil)
		if err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, io.EOF) {
					c.logger.Error("ws read failed", slog.Any("err", err))
				}
			}
			c.setDone(err)
			return
		}

		for _, msg := range messages {
			if msg.OpCode.IsControl() {
				c.logger.Debug("rcv: control", slog.Any("opcode", msg.OpCode))
				switch msg.OpCode {
				case ws.OpPing:
					c.enqueueControl(wsutil.Message{OpCode: ws.OpPong, Payload: msg.Payload})
				case ws.OpClose:
					c.logger.Debug("rcv: close", slog.String("reason", string(msg.Payload)))
					c.enqueueControl(wsutil.Message{OpCode: ws.OpClose, Payload: ws.NewCloseFrameBody(ws.StatusNormalClosure, "")})
					c.setDone(ErrClosed)
					return
				}
				continue
			}

			select {
			case c.in <- msg.Payload:
			case <-c.done:
				return
			}
		}
	}
}

// control replies must not block the reader
func (c *Client) enqueueControl(msg wsutil.Message) {
	select {
	case c.out <- msg:
	default:
		c.logger.Warn("dropping control frame, write queue full", slog.Any("opcode", msg.OpCode))
	}
}

func (c *Client) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			if err := wsutil.WriteClientMessage(c.conn, msg.OpCode, msg.Payload); err != nil {
				c.logger.Error("message write error", slog.Any("err", err))
				c.setDone(err)
				return
			}
			if msg.OpCode == ws.OpClose {
				return
			}
		}
	}
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("url", config.URL))

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}

	// handshake timeout only, the connection outlives ctx
	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", config.URL, err)
	}
	logger.Debug("handshake complete", slog.Any("protocol", hs.Protocol))

	// frames sent right after the handshake may already sit in buf
	var src io.Reader = conn
	if buf != nil {
		src = io.MultiReader(buf, conn)
	}

	client := &Client{
		conn:       conn,
		src:        src,
		in:         make(chan []byte, queueSize),
		out:        make(chan wsutil.Message, queueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		logger:     logger,
	}

	go client.readLoop()
	go client.writeLoop()

	logger.Info("connected to websocket")

	return client, nil
}
