package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codewandler/rtrelay/events"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type GatewayOption func(*Gateway)

func WithSessionConfig(config events.SessionUpdate) GatewayOption {
	return func(g *Gateway) {
		g.config = config
	}
}

func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m *Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

func WithTracker(t *Tracker) GatewayOption {
	return func(g *Gateway) {
		g.tracker = t
	}
}

// WithAllowedOrigins restricts browser clients to the given origins.
// Requests without an Origin header are always accepted.
func WithAllowedOrigins(origins ...string) GatewayOption {
	return func(g *Gateway) {
		g.origins = make(map[string]struct{}, len(origins))
		for _, o := range origins {
			if o = strings.TrimSpace(o); o != "" {
				g.origins[o] = struct{}{}
			}
		}
	}
}

func WithMaxMessageBytes(n int64) GatewayOption {
	return func(g *Gateway) {
		g.maxMessageBytes = n
	}
}

func WithPingInterval(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.pingInterval = d
	}
}

// WithAcceptRate limits how fast new sessions are accepted.
func WithAcceptRate(perSecond float64, burst int) GatewayOption {
	return func(g *Gateway) {
		if perSecond > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithBaseContext sets the parent context of every relay session.
// Cancelling it ends all sessions.
func WithBaseContext(ctx context.Context) GatewayOption {
	return func(g *Gateway) {
		g.baseCtx = ctx
	}
}

// Gateway terminates client websocket connections and relays each one to
// its own upstream connection.
type Gateway struct {
	validator Validator
	upstream  UpstreamFactory
	config    events.SessionUpdate

	origins         map[string]struct{}
	maxMessageBytes int64
	pingInterval    time.Duration
	limiter         *rate.Limiter
	upgrader        websocket.Upgrader

	baseCtx context.Context
	tracker *Tracker
	metrics *Metrics
	logger  *slog.Logger
}

func NewGateway(validator Validator, upstream UpstreamFactory, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		validator:    validator,
		upstream:     upstream,
		config:       events.DefaultSessionUpdate(),
		pingInterval: 30 * time.Second,
		baseCtx:      context.Background(),
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// origin is checked before the upgrade
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return g
}

func (g *Gateway) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || g.origins == nil {
		return true
	}
	_, ok := g.origins[origin]
	return ok
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.limiter != nil && !g.limiter.Allow() {
		g.metrics.rateLimited()
		writeJSONError(w, http.StatusTooManyRequests, "too many sessions")
		return
	}
	if !g.originAllowed(r) {
		writeJSONError(w, http.StatusForbidden, "origin is not allowed")
		return
	}

	sess := newSession(g.config, WithSessionLogger(g.logger), WithSessionMetrics(g.metrics))
	logger := sess.logger.With(slog.String("remote", r.RemoteAddr))

	sess.transition(StateAuthenticating)
	token, err := ExtractCredential(r)
	if err != nil {
		sess.transition(StateClosed)
		g.metrics.authFailure("missing")
		g.metrics.sessionRejected("auth_required")
		logger.Debug("rejecting upgrade", slog.Any("err", err))
		writeJSONError(w, http.StatusUnauthorized, ErrAuthRequired.Error())
		return
	}
	identity, err := g.validator.Validate(r.Context(), token)
	if err != nil {
		sess.transition(StateClosed)
		g.metrics.authFailure("invalid")
		g.metrics.sessionRejected("auth_invalid")
		logger.Info("rejecting upgrade", slog.Any("err", err))
		writeJSONError(w, http.StatusForbidden, ErrAuthInvalid.Error())
		return
	}
	sess.Identity = identity
	logger = logger.With(slog.String("subject", identity.Subject))

	wsConn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sess.transition(StateClosed)
		logger.Warn("upgrade failed", slog.Any("err", err))
		return
	}
	if g.maxMessageBytes > 0 {
		wsConn.SetReadLimit(g.maxMessageBytes)
	}
	client := NewServerConn(wsConn, g.pingInterval)
	sess.client = client

	ctx, cancel := context.WithCancel(g.baseCtx)
	defer cancel()
	unregister := g.tracker.Register(sess.ID, Handle{Cancel: cancel, Notify: sess.Notify})
	defer unregister()

	sess.transition(StateConnecting)
	dialStart := time.Now()
	upstream, err := g.upstream.Open(ctx)
	g.metrics.upstreamDial(time.Since(dialStart))
	if err != nil {
		if !errors.Is(err, ErrUpstreamUnavailable) {
			err = errors.Join(ErrUpstreamUnavailable, err)
		}
		logger.Error("upstream dial failed", slog.Any("err", err))
		g.metrics.sessionRejected("upstream_unavailable")
		sess.failClient(ctx, ErrUpstreamUnavailable.Error())
		sess.closeBoth()
		sess.transition(StateClosed)
		return
	}
	sess.upstream = upstream

	logger.Info("session relaying")
	if err := sess.Run(ctx); err != nil {
		logger.Debug("session ended", slog.Any("err", err))
	}
}
