// Package metrics exposes the agent's counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "framelink"

// Metrics holds all collectors. Each instance has its own registry so tests
// can create as many as they like.
type Metrics struct {
	FramesCaptured  prometheus.Counter
	FramesPublished prometheus.Counter
	FramesDropped   prometheus.Counter
	CaptureTimeouts prometheus.Counter
	CycleFailures   prometheus.Counter
	Cooldowns       prometheus.Counter
	PublishBytes    prometheus.Counter
	CycleDuration   prometheus.Histogram
	HeldBuffers     prometheus.Gauge

	LinkState         prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	ConnectionLosses  prometheus.Counter

	InboundReceived prometheus.Counter
	InboundDropped  prometheus.Counter

	registry *prometheus.Registry
}

// New creates a new Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Frames acquired from the capture device",
		}),
		FramesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_published_total",
			Help:      "Frames acknowledged by the broker",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames captured but not published (codec or link failure)",
		}),
		CaptureTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_timeouts_total",
			Help:      "Cycles in which no frame arrived within the capture window",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Failed capture/publish cycles",
		}),
		Cooldowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldowns_total",
			Help:      "Cool-down pauses after consecutive failures",
		}),
		PublishBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_bytes_total",
			Help:      "Payload bytes acknowledged by the broker",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Processing time of one capture/publish cycle, excluding pacing sleep",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		HeldBuffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "held_buffers",
			Help:      "Capture buffers currently held by the application",
		}),
		LinkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_state",
			Help:      "Link state: 0 disconnected, 1 connecting, 2 connected",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts made by the maintenance loop",
		}),
		ConnectionLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_losses_total",
			Help:      "Transport-reported connection losses",
		}),
		InboundReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_received_total",
			Help:      "Inbound messages accepted on the command topic",
		}),
		InboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_dropped_total",
			Help:      "Inbound messages dropped (wrong topic or full queue)",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.FramesCaptured,
		m.FramesPublished,
		m.FramesDropped,
		m.CaptureTimeouts,
		m.CycleFailures,
		m.Cooldowns,
		m.PublishBytes,
		m.CycleDuration,
		m.HeldBuffers,
		m.LinkState,
		m.ReconnectAttempts,
		m.ConnectionLosses,
		m.InboundReceived,
		m.InboundDropped,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
