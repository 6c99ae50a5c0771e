package rtrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/rtrelay/audio"
	"github.com/codewandler/rtrelay/events"
	"github.com/codewandler/rtrelay/internal/websocket"
	"github.com/codewandler/rtrelay/transcript"
	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sethvargo/go-retry"
)

var (
	ErrConnect        = errors.New("could not connect to gateway")
	ErrConnectionLost = errors.New("connection to gateway lost")
)

// Conn is the client's connection to the gateway.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

type DialerFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	return f(ctx, url, header)
}

type websocketDialer struct {
	logger *slog.Logger
}

func (d websocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:     url,
		Headers: header,
		Logger:  d.logger,
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type ToolCallHandler func(name string, args map[string]any) (any, error)

// connection is one dialed gateway connection and its receive loop.
type connection struct {
	conn   Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Client is the end-user side of a relay session. It captures microphone
// audio, plays streamed responses and keeps the transcript.
type Client struct {
	config *clientConfig

	encoder    *audio.Encoder
	queue      *audio.Queue
	transcript *transcript.Aggregator

	// mu serializes Start, Stop and SendText
	mu        sync.Mutex
	recording bool
	attempts  atomic.Int32

	// the capture callback only ever loads conn, it never takes mu
	conn atomic.Pointer[connection]

	onEvent    func(e events.Event)
	onError    func(err error)
	onMessage  func(m transcript.Message)
	onToolCall ToolCallHandler
	logger     *slog.Logger
}

func New(opts ...ClientOption) *Client {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	if d, ok := config.dialer.(websocketDialer); ok && d.logger == nil {
		config.dialer = websocketDialer{logger: config.logger}
	}

	c := &Client{
		config: config,
		logger: config.logger,
	}
	c.encoder = audio.NewEncoder(config.device,
		audio.WithDeviceRate(config.deviceRate),
		audio.WithWindow(config.latency()),
		audio.WithEncoderLogger(config.logger),
	)
	c.queue = audio.NewQueue(config.player, audio.WithQueueLogger(config.logger))
	c.transcript = transcript.New(transcript.WithOnChange(func(m transcript.Message) {
		if c.onMessage != nil {
			c.onMessage(m)
		}
	}))
	return c
}

// OnEvent, OnError, OnMessage and OnToolCall must be registered before the
// first connection is opened.

func (c *Client) OnEvent(h func(e events.Event)) {
	c.onEvent = h
}

func (c *Client) OnError(h func(err error)) {
	c.onError = h
}

func (c *Client) OnMessage(h func(m transcript.Message)) {
	c.onMessage = h
}

func (c *Client) OnToolCall(h ToolCallHandler) {
	c.onToolCall = h
}

func (c *Client) Messages() []transcript.Message {
	return c.transcript.Messages()
}

func (c *Client) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Connected reports whether a gateway connection is open.
func (c *Client) Connected() bool {
	return c.conn.Load() != nil
}

// Attempts is the number of connection attempts made by the last
// StartRecordingWithRetry call.
func (c *Client) Attempts() int {
	return int(c.attempts.Load())
}

// StartRecording connects to the gateway and starts streaming microphone
// audio. It is a no-op while already recording.
func (c *Client) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		return nil
	}

	opened := c.conn.Load() == nil
	if _, err := c.ensureConn(ctx); err != nil {
		return err
	}

	if err := c.encoder.Start(c.sendFrame); err != nil {
		if opened {
			c.closeConn(c.conn.Load())
		}
		return err
	}

	c.recording = true
	c.logger.Info("recording started")
	return nil
}

// StartRecordingWithRetry is StartRecording with bounded exponential
// backoff on connection failures. Device errors are not retried.
func (c *Client) StartRecordingWithRetry(ctx context.Context) error {
	c.attempts.Store(0)

	b := retry.NewExponential(c.config.retryBase)
	b = retry.WithMaxRetries(uint64(max(c.config.maxAttempts-1, 0)), b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt := c.attempts.Add(1)
		err := c.StartRecording(ctx)
		if err == nil || errors.Is(err, audio.ErrDeviceUnavailable) {
			return err
		}
		c.logger.Warn("start recording failed", slog.Int("attempt", int(attempt)), slog.Any("err", err))
		return retry.RetryableError(err)
	})
}

// StopRecording releases the capture device and closes the connection.
// The device is released before it returns. Calling it again is a no-op.
// It may be called from the OnEvent, OnError and OnMessage callbacks.
func (c *Client) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(c.conn.Load())
}

// stopLocked must be called with mu held.
func (c *Client) stopLocked(h *connection) error {
	var err error
	if c.recording {
		err = c.encoder.Stop()
		c.recording = false
		c.logger.Info("recording stopped")
	}
	c.closeConn(h)
	c.queue.Clear()
	c.transcript.CloseOpen()
	return err
}

// connectionLost stops recording unless h was already replaced by a newer
// connection.
func (c *Client) connectionLost(h *connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn.Load() != h {
		return
	}
	if err := c.stopLocked(h); err != nil {
		c.logger.Error("stop after connection loss", slog.Any("err", err))
	}
}

// SendText adds a typed user message and sends it to the assistant. Blank
// text is ignored. A connection is opened if none exists.
func (c *Client) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.transcript.Append(transcript.SenderUser, transcript.KindText, text)

	h, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}

	id, _ := nanoid.New()
	if err := c.send(h, events.NewUserText(id, text)); err != nil {
		return err
	}
	return c.send(h, events.NewResponseCreate())
}

// Close stops recording and playback.
func (c *Client) Close() error {
	err := c.StopRecording()
	c.queue.Close()
	return err
}

func (c *Client) send(h *connection, ev events.Event) error {
	data, err := events.Encode(ev)
	if err != nil {
		return err
	}
	if err := h.conn.Write(h.ctx, data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// sendFrame runs on the capture thread. Frames are dropped while no
// connection is open.
func (c *Client) sendFrame(frame []byte) {
	h := c.conn.Load()
	if h == nil {
		return
	}
	select {
	case <-h.done:
		return
	default:
	}
	if err := h.conn.Write(h.ctx, frame); err != nil {
		c.logger.Debug("dropping audio frame", slog.Any("err", err))
	}
}

func (c *Client) endpoint(ctx context.Context) (string, error) {
	if c.config.gatewayURL == "" {
		return "", errors.New("missing gateway url")
	}
	u, err := url.Parse(c.config.gatewayURL)
	if err != nil {
		return "", err
	}
	if c.config.token != nil {
		token, err := c.config.token(ctx)
		if err != nil {
			return "", fmt.Errorf("token: %w", err)
		}
		if token != "" {
			q := u.Query()
			q.Set("jwt", token)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

// ensureConn must be called with mu held.
func (c *Client) ensureConn(ctx context.Context) (*connection, error) {
	if h := c.conn.Load(); h != nil {
		return h, nil
	}

	endpoint, err := c.endpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	conn, err := c.config.dialer.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	h := &connection{
		conn:   conn,
		ctx:    connCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.conn.Store(h)
	go c.receive(h)

	c.logger.Info("connected to gateway")
	return h, nil
}

// closeConn detaches h and closes it. It does not wait for the receive
// loop, which may be the caller.
func (c *Client) closeConn(h *connection) {
	if h == nil || !c.conn.CompareAndSwap(h, nil) {
		return
	}
	h.cancel()
	_ = h.conn.Close()
}

func (c *Client) receive(h *connection) {
	defer close(h.done)

	for {
		data, err := h.conn.Read(h.ctx)
		if err != nil {
			if c.conn.Load() == h {
				c.logger.Warn("gateway connection lost", slog.Any("err", err))
				c.reportError(fmt.Errorf("%w: %v", ErrConnectionLost, err))
				go c.connectionLost(h)
			}
			return
		}
		if c.conn.Load() != h {
			return
		}
		c.dispatch(h, data)
	}
}

func (c *Client) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Client) dispatch(h *connection, data []byte) {
	ev, err := events.Decode(data)
	if err != nil {
		c.logger.Warn("dropping frame", slog.Any("err", err))
		return
	}

	switch e := ev.(type) {
	case *events.ResponseAudioDeltaEvent:
		pcm, err := e.Audio()
		if err != nil {
			c.logger.Warn("dropping audio delta", slog.Any("err", err))
			break
		}
		c.queue.Enqueue(pcm)

	case *events.ResponseAudioTranscriptDeltaEvent:
		c.transcript.ApplyDelta(transcript.SenderAssistant, e.Delta)

	case *events.ResponseAudioTranscriptDoneEvent:
		c.transcript.CloseOpen()

	case *events.ResponseDoneEvent:
		c.transcript.CloseOpen()
		c.handleToolCalls(h, e)

	case *events.SpeechStartedEvent:
		// barge-in: the user talks over the assistant
		c.transcript.CloseOpen()
		c.queue.Clear()

	case *events.InputAudioTranscriptionCompletedEvent:
		if t := strings.TrimSpace(e.Transcript); t != "" {
			c.transcript.Append(transcript.SenderUser, transcript.KindAudioTranscript, t)
		}

	case *events.ErrorEvent:
		c.logger.Error("gateway error", slog.String("message", e.Error()))
		c.reportError(e)
	}

	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (c *Client) handleToolCalls(h *connection, evt *events.ResponseDoneEvent) {
	if c.onToolCall == nil {
		return
	}

	for _, o := range evt.Response.Output {
		if o.Type != "function_call" || o.Status != "completed" {
			continue
		}

		var args map[string]any
		if err := json.Unmarshal([]byte(o.Arguments), &args); err != nil {
			c.logger.Warn("invalid tool arguments", slog.String("name", o.Name), slog.Any("err", err))
			continue
		}

		res, err := c.onToolCall(o.Name, args)
		c.logger.Debug("tool call", slog.String("name", o.Name), slog.Any("args", args), slog.Any("res", res), slog.Any("err", err))

		var output any
		switch {
		case err != nil:
			output = map[string]any{"error": err.Error()}
		case res != nil:
			output = res
		default:
			output = map[string]any{"success": true}
		}
		d, _ := json.Marshal(output)

		_ = c.send(h, &events.ConversationItemCreateEvent{
			BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
			Item: events.ConversationItem{
				ID:     o.CallID,
				Type:   "function_call_output",
				CallID: o.CallID,
				Output: string(d),
			},
		})
		_ = c.send(h, events.NewResponseCreate())
	}
}

// WaitIdle blocks until queued playback has drained or ctx is done.
func (c *Client) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for c.queue.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
