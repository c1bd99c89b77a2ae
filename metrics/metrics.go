// Package metrics exposes the client's runtime counters and gauges as
// prometheus collectors: connection state, heartbeats and reconnects,
// request latency, and message throughput.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the client registers on startup.
type Metrics struct {
	connectionState prometheus.Gauge
	reconnectsTotal prometheus.Counter
	heartbeatsSent  prometheus.Counter
	heartbeatsLost  prometheus.Counter

	requestsTotal   *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	requestTimeouts prometheus.Counter

	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	resourceBytes    prometheus.Histogram
}

// New registers a fresh set of collectors against reg. Passing nil
// registers against a freshly created registry rather than the global
// default, so multiple Clients (or multiple tests) never collide on
// duplicate metric names.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "duskline_connection_state",
			Help: "Current connection state (0=disconnected, 1=connecting, 2=connected, 3=secure, 4=logged_in)",
		}),
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskline_reconnects_total",
			Help: "Total number of reconnect attempts",
		}),
		heartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskline_heartbeats_sent_total",
			Help: "Total number of heartbeat pings sent",
		}),
		heartbeatsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskline_heartbeats_lost_total",
			Help: "Total number of heartbeats that timed out",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duskline_requests_total",
			Help: "Total number of requests issued, by kind and outcome",
		}, []string{"kind", "outcome"}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "duskline_request_latency_seconds",
			Help:    "Request round-trip latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		requestTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskline_request_timeouts_total",
			Help: "Total number of requests that timed out before a reply",
		}),
		messagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskline_messages_sent_total",
			Help: "Total number of messages fully sent",
		}),
		messagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskline_messages_received_total",
			Help: "Total number of messages fully received",
		}),
		resourceBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "duskline_resource_bytes",
			Help:    "Body size in bytes of each sent message packet",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}
}

// ConnectionState values, matching the client state machine's ordering.
const (
	StateDisconnected = 0
	StateConnecting   = 1
	StateConnected    = 2
	StateSecure       = 3
	StateLoggedIn     = 4
)

func (m *Metrics) SetConnectionState(state int) {
	m.connectionState.Set(float64(state))
}

func (m *Metrics) IncReconnect() {
	m.reconnectsTotal.Inc()
}

func (m *Metrics) IncHeartbeatSent() {
	m.heartbeatsSent.Inc()
}

func (m *Metrics) IncHeartbeatLost() {
	m.heartbeatsLost.Inc()
}

func (m *Metrics) ObserveRequest(kind, outcome string, latency time.Duration) {
	m.requestsTotal.WithLabelValues(kind, outcome).Inc()
	m.requestLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

func (m *Metrics) IncRequestTimeout() {
	m.requestTimeouts.Inc()
}

func (m *Metrics) IncMessageSent() {
	m.messagesSent.Inc()
}

func (m *Metrics) IncMessageReceived() {
	m.messagesReceived.Inc()
}

func (m *Metrics) ObserveResourceBytes(n int64) {
	m.resourceBytes.Observe(float64(n))
}
