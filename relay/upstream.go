package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/codewandler/rtrelay/internal/websocket"
)

var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// UpstreamFactory opens the provider leg of a session. Provider
// credentials belong to the factory, never to the end user.
type UpstreamFactory interface {
	Open(ctx context.Context) (Conn, error)
}

type UpstreamFunc func(ctx context.Context) (Conn, error)

func (f UpstreamFunc) Open(ctx context.Context) (Conn, error) {
	return f(ctx)
}

const (
	DefaultRealtimeURL   = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel = "gpt-4o-realtime-preview-2025-06-03"
)

// OpenAIUpstream dials the OpenAI realtime endpoint.
type OpenAIUpstream struct {
	URL         string
	Model       string
	APIKey      string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

func (o *OpenAIUpstream) endpoint() (string, error) {
	base := o.URL
	if base == "" {
		base = DefaultRealtimeURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	model := o.Model
	if model == "" {
		model = DefaultRealtimeModel
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (o *OpenAIUpstream) Open(ctx context.Context) (Conn, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("%w: missing api key", ErrUpstreamUnavailable)
	}
	endpoint, err := o.endpoint()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", o.APIKey))
	headers.Add("OpenAI-Beta", "realtime=v1")

	conn, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:         endpoint,
		DialTimeout: o.DialTimeout,
		Headers:     headers,
		Logger:      o.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return conn, nil
}
