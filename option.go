package rtrelay

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/codewandler/rtrelay/audio"
)

const (
	TokenEnvVarName   = "RTRELAY_TOKEN"
	GatewayEnvVarName = "RTRELAY_GATEWAY_URL"

	DefaultGatewayURL = "ws://127.0.0.1:8080/v1/realtime"
)

// TokenSource returns the bearer credential presented to the gateway.
type TokenSource func(ctx context.Context) (string, error)

func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

type clientConfig struct {
	gatewayURL  string
	token       TokenSource
	dialer      Dialer
	device      audio.CaptureDevice
	deviceRate  int
	latencyMS   int
	player      audio.Player
	maxAttempts int
	retryBase   time.Duration
	logger      *slog.Logger
}

func (c *clientConfig) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

type ClientOption func(*clientConfig)

func WithGatewayURL(url string) ClientOption {
	return func(config *clientConfig) {
		config.gatewayURL = url
	}
}

func WithToken(token string) ClientOption {
	return func(config *clientConfig) {
		config.token = StaticToken(token)
	}
}

func WithTokenSource(src TokenSource) ClientOption {
	return func(config *clientConfig) {
		config.token = src
	}
}

// WithEnvToken uses the first non-empty environment variable as token.
func WithEnvToken(vars ...string) ClientOption {
	return func(o *clientConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				o.token = StaticToken(k)
				return
			}
		}
	}
}

func WithEnvGatewayURL(vars ...string) ClientOption {
	return func(o *clientConfig) {
		for _, envVarName := range vars {
			if u := os.Getenv(envVarName); u != "" {
				o.gatewayURL = u
				return
			}
		}
	}
}

func WithDialer(d Dialer) ClientOption {
	return func(config *clientConfig) {
		config.dialer = d
	}
}

// WithCaptureDevice sets the microphone. Without one StartRecording fails
// with audio.ErrDeviceUnavailable; text still works.
func WithCaptureDevice(device audio.CaptureDevice) ClientOption {
	return func(config *clientConfig) {
		config.device = device
	}
}

// WithDeviceRate sets the rate the capture device is opened at. Samples are
// resampled to the wire rate.
func WithDeviceRate(sr int) ClientOption {
	return func(config *clientConfig) {
		config.deviceRate = sr
	}
}

// WithPlayer sets the output for assistant audio. The default discards it.
func WithPlayer(p audio.Player) ClientOption {
	return func(config *clientConfig) {
		config.player = p
	}
}

// WithRetry bounds StartRecordingWithRetry to maxAttempts connection
// attempts, waiting base, 2*base, 4*base ... between them.
func WithRetry(maxAttempts int, base time.Duration) ClientOption {
	return func(config *clientConfig) {
		config.maxAttempts = maxAttempts
		config.retryBase = base
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

// WithLatency sets the capture window in milliseconds. Values below one
// sample keep the 100 ms default.
func WithLatency(latencyMS int) ClientOption {
	return func(o *clientConfig) {
		o.latencyMS = latencyMS
	}
}

func withDefaults() ClientOption {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithGatewayURL(DefaultGatewayURL),
		WithEnvGatewayURL(GatewayEnvVarName),
		WithEnvToken(TokenEnvVarName),
		WithDialer(websocketDialer{}),
		WithDeviceRate(audio.SampleRate),
		WithLatency(100),
		WithPlayer(audio.Discard),
		WithRetry(5, time.Second),
	)
}
