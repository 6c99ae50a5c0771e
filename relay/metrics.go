package relay

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DirectionClientToUpstream = "client_to_upstream"
	DirectionUpstreamToClient = "upstream_to_client"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive      prometheus.Gauge
	SessionsTotal       *prometheus.CounterVec
	SessionDuration     prometheus.Histogram
	FramesTotal         *prometheus.CounterVec
	FramesDropped       *prometheus.CounterVec
	ConfigInjections    prometheus.Counter
	AuthFailures        *prometheus.CounterVec
	UpstreamDialSeconds prometheus.Histogram
	RateLimited         prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "rtrelay"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of relay sessions currently relaying",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Relay sessions by outcome",
		}, []string{"outcome"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Relay session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames forwarded",
		}, []string{"direction"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Malformed frames dropped",
		}, []string{"direction"}),
		ConfigInjections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_injections_total",
			Help:      "session.update frames injected",
		}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected upgrade requests",
		}, []string{"reason"}),
		UpstreamDialSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_dial_seconds",
			Help:      "Time to open the upstream connection",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Upgrade requests rejected by the accept limiter",
		}),
	}

	registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionDuration,
		m.FramesTotal,
		m.FramesDropped,
		m.ConfigInjections,
		m.AuthFailures,
		m.UpstreamDialSeconds,
		m.RateLimited,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) sessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) sessionEnd(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(d.Seconds())
}

func (m *Metrics) sessionRejected(outcome string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) frame(direction string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) dropped(direction string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(direction).Inc()
}

func (m *Metrics) injected() {
	if m == nil {
		return
	}
	m.ConfigInjections.Inc()
}

func (m *Metrics) authFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) upstreamDial(d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDialSeconds.Observe(d.Seconds())
}

func (m *Metrics) rateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
