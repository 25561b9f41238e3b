// Package telemetry exports what the hub observes: Prometheus counters for
// the radio protocol and an MQTT sink for sensor and actuator updates.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reasons a received frame is discarded.
const (
	DropUnknownPeer = "unknown_peer"
	DropInvalid     = "invalid"
	DropUnexpected  = "unexpected_kind"
	DropGateClosed  = "gate_closed"
	DropQueueFull   = "queue_full"
)

// Outcomes of a sync-mode session.
const (
	SessionRegistered = "registered"
	SessionTimeout    = "timeout"
	SessionCancelled  = "cancelled"
	SessionFailed     = "failed"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	received      *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	sent          *prometheus.CounterVec
	sendRejected  *prometheus.CounterVec
	deliveryFail  prometheus.Counter
	registrations *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	paired        prometheus.Gauge
}

// NewMetrics creates the hub collectors under namespace and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "frames_received_total",
			Help:      "Number of valid frames accepted from paired nodes.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "frames_dropped_total",
			Help:      "Number of received frames silently discarded.",
		}, []string{"reason"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "frames_sent_total",
			Help:      "Number of frames accepted for transmission by the radio.",
		}, []string{"kind"}),
		sendRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "send_rejected_total",
			Help:      "Number of frames the radio refused to transmit.",
		}, []string{"kind"}),
		deliveryFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "radio",
			Name:      "delivery_failures_total",
			Help:      "Number of send-completion callbacks reporting failure.",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "registrations_total",
			Help:      "Number of registration attempts by result.",
		}, []string{"result"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "sessions_total",
			Help:      "Number of finished sync-mode sessions by outcome.",
		}, []string{"outcome"}),
		paired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "paired_devices",
			Help:      "Number of devices currently paired.",
		}),
	}
	reg.MustRegister(m.received, m.dropped, m.sent, m.sendRejected, m.deliveryFail,
		m.registrations, m.sessions, m.paired)
	return m
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(kind).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) FrameSent(kind string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(kind).Inc()
}

func (m *Metrics) SendRejected(kind string) {
	if m == nil {
		return
	}
	m.sendRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFail.Inc()
}

func (m *Metrics) Registration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetPaired(n int) {
	if m == nil {
		return
	}
	m.paired.Set(float64(n))
}
