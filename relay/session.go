package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/rtrelay/events"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type State int32

const (
	StateAwaitingUpgrade State = iota
	StateAuthenticating
	StateConnecting
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingUpgrade:
		return "awaiting_upgrade"
	case StateAuthenticating:
		return "authenticating"
	case StateConnecting:
		return "connecting"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	ErrClientClosed   = errors.New("client closed")
	ErrUpstreamClosed = errors.New("upstream closed")
)

// configGate opens exactly once per session.
type configGate struct {
	sent atomic.Bool
}

func (g *configGate) take() bool {
	return g.sent.CompareAndSwap(false, true)
}

func (g *configGate) Sent() bool {
	return g.sent.Load()
}

type SessionOption func(*Session)

func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		s.ID = id
	}
}

func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithSessionMetrics(m *Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session pairs one client connection with one upstream connection.
type Session struct {
	ID       string
	Identity Identity

	client   Conn
	upstream Conn
	config   events.SessionUpdate
	gate     configGate

	state     atomic.Int32
	closing   atomic.Bool
	closeOnce sync.Once
	// upstream has two writers: the client pump and the config injection
	upMu sync.Mutex

	logger  *slog.Logger
	metrics *Metrics
}

// NewSession prepares a session between two connected legs. The session
// config is sent upstream once, on the first session.created.
func NewSession(client, upstream Conn, config events.SessionUpdate, opts ...SessionOption) *Session {
	s := newSession(config, opts...)
	s.client = client
	s.upstream = upstream
	s.transition(StateConnecting)
	return s
}

func newSession(config events.SessionUpdate, opts ...SessionOption) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		config: config,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("session", s.ID))
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) ConfigSent() bool {
	return s.gate.Sent()
}

func (s *Session) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to {
		s.logger.Debug("session state", slog.String("from", from.String()), slog.String("to", to.String()))
	}
}

// Run relays frames until either leg closes, then closes the other one.
// The returned error names the leg that ended the session.
func (s *Session) Run(ctx context.Context) error {
	s.transition(StateRelaying)
	started := time.Now()
	s.metrics.sessionStart()

	// pumps always return an error, which cancels gctx and closes both legs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.pumpClient(gctx)
	})
	g.Go(func() error {
		return s.pumpUpstream(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.closeBoth()
		return nil
	})

	err := g.Wait()
	s.transition(StateClosed)

	outcome := "client_closed"
	switch {
	case errors.Is(err, ErrUpstreamUnavailable):
		outcome = "upstream_lost"
	case errors.Is(err, ErrUpstreamClosed):
		outcome = "upstream_closed"
	case ctx.Err() != nil:
		outcome = "canceled"
	}
	s.metrics.sessionEnd(outcome, time.Since(started))
	s.logger.Info("session closed", slog.String("outcome", outcome), slog.Duration("duration", time.Since(started)))
	return err
}

func (s *Session) pumpClient(ctx context.Context) error {
	for {
		data, err := s.client.Read(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrClientClosed, err)
		}
		if _, err := events.PeekType(data); err != nil {
			s.logger.Warn("dropping client frame", slog.Any("err", err))
			s.metrics.dropped(DirectionClientToUpstream)
			continue
		}
		if err := s.writeUpstream(ctx, data); err != nil {
			return s.upstreamLost(ctx, err)
		}
		s.metrics.frame(DirectionClientToUpstream)
	}
}

func (s *Session) pumpUpstream(ctx context.Context) error {
	for {
		data, err := s.upstream.Read(ctx)
		if err != nil {
			return s.upstreamLost(ctx, err)
		}

		eventType, err := events.PeekType(data)
		if err != nil {
			s.logger.Warn("dropping upstream frame", slog.Any("err", err))
			s.metrics.dropped(DirectionUpstreamToClient)
			continue
		}

		if eventType == events.TypeSessionCreated && s.gate.take() {
			if err := s.injectConfig(ctx); err != nil {
				return s.upstreamLost(ctx, err)
			}
		}

		if err := s.client.Write(ctx, data); err != nil {
			return fmt.Errorf("%w: %v", ErrClientClosed, err)
		}
		s.metrics.frame(DirectionUpstreamToClient)
	}
}

func (s *Session) injectConfig(ctx context.Context) error {
	frame, err := events.Encode(events.NewSessionUpdate(s.config))
	if err != nil {
		return err
	}
	if err := s.writeUpstream(ctx, frame); err != nil {
		return err
	}
	s.metrics.injected()
	s.logger.Debug("session config sent")
	return nil
}

func (s *Session) writeUpstream(ctx context.Context, data []byte) error {
	s.upMu.Lock()
	defer s.upMu.Unlock()
	return s.upstream.Write(ctx, data)
}

// upstreamLost reports the failure to the client unless the session is
// already shutting down.
func (s *Session) upstreamLost(ctx context.Context, cause error) error {
	if s.closing.Load() || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamClosed, cause)
	}
	s.logger.Warn("upstream lost", slog.Any("err", cause))
	s.failClient(ctx, "upstream connection lost")
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, cause)
}

// failClient sends an error frame and closes the client with 1013.
func (s *Session) failClient(ctx context.Context, message string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	if frame, err := events.Encode(events.NewError(message)); err == nil {
		_ = s.client.Write(writeCtx, frame)
	}
	if sc, ok := s.client.(statusCloser); ok {
		_ = sc.CloseWithStatus(CloseUpstreamUnavailable, ErrUpstreamUnavailable.Error())
	}
}

func (s *Session) closeBoth() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if s.client != nil {
			_ = s.client.Close()
		}
		if s.upstream != nil {
			_ = s.upstream.Close()
		}
	})
}

// Notify sends an in-band error frame to the client.
func (s *Session) Notify(message string) error {
	frame, err := events.Encode(events.NewError(message))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.client.Write(ctx, frame)
}
