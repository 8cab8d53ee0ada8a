package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes session counters and gauges.
type Metrics struct {
	ConnectAttempts   prometheus.Counter
	HandshakeFailures prometheus.Counter
	Reconnects        prometheus.Counter
	Requests          prometheus.Counter
	Timeouts          prometheus.Counter
	RemoteErrors      prometheus.Counter
	TickTimeouts      prometheus.Counter
	Connected         prometheus.Gauge
	Pending           prometheus.Gauge
}

// NewMetrics registers the session metrics with reg. A nil reg registers
// against a private registry, which keeps independent sessions (and tests)
// from colliding on metric names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		ConnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roost", Subsystem: "gateway", Name: "connect_attempts_total",
			Help: "Connection attempts to the gateway.",
		}),
		HandshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roost", Subsystem: "gateway", Name: "handshake_failures_total",
			Help: "Connect handshakes rejected by the gateway.",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roost", Subsystem: "gateway", Name: "reconnects_scheduled_total",
			Help: "Reconnection attempts scheduled after a disconnect.",
		}),
		Requests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roost", Subsystem: "gateway", Name: "requests_total",
			Help: "Requests written to the gateway.",
		}),
		Timeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roost", Subsystem: "gateway", Name: "request_timeouts_total",
			Help: "Requests that expired without a response.",
		}),
		RemoteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roost", Subsystem: "gateway", Name: "remote_errors_total",
			Help: "Responses with ok=false.",
		}),
		TickTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roost", Subsystem: "gateway", Name: "tick_timeouts_total",
			Help: "Connections force-closed for liveness silence.",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "roost", Subsystem: "gateway", Name: "connected",
			Help: "1 while the session is authenticated and connected.",
		}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "roost", Subsystem: "gateway", Name: "pending_requests",
			Help: "In-flight requests awaiting a response.",
		}),
	}
}
