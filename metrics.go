package hnmp

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hnmp"

// metrics holds the Prometheus collectors for a connection. A nil
// *metrics records nothing.
type metrics struct {
	connects       *prometheus.CounterVec
	framesIn       *prometheus.CounterVec
	framesOut      *prometheus.CounterVec
	bytesIn        prometheus.Counter
	bytesOut       prometheus.Counter
	protocolErrors prometheus.Counter
	disconnects    *prometheus.CounterVec
	connected      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	return &metrics{
		connects: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts by result.",
		}, []string{"result"})),
		framesIn: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded from the server, by message type.",
		}, []string{"type"})),
		framesOut: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the server, by message type.",
		}, []string{"type"})),
		bytesIn: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "received_bytes_total",
			Help:      "Bytes read from the socket.",
		})),
		bytesOut: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sent_bytes_total",
			Help:      "Bytes written to the socket.",
		})),
		protocolErrors: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Malformed or unhandled frames.",
		})),
		disconnects: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "disconnects_total",
			Help:      "Connection teardowns, by whether a session was active.",
		}, []string{"active_session"})),
		connected: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected",
			Help:      "Connections currently in the connected state.",
		})),
	}
}

// register adds c to reg, or returns the collector already registered
// under the same descriptor. Any other registration error panics, as
// MustRegister does.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(errors.Wrap(err, "register metrics"))
}

func (m *metrics) connectAttempt(result string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result).Inc()
	if result == "ok" {
		m.connected.Inc()
	}
}

func (m *metrics) received(n int) {
	if m == nil {
		return
	}
	m.bytesIn.Add(float64(n))
}

func (m *metrics) frameReceived(t Type) {
	if m == nil {
		return
	}
	m.framesIn.WithLabelValues(t.String()).Inc()
}

func (m *metrics) frameSent(t Type, n int) {
	if m == nil {
		return
	}
	m.framesOut.WithLabelValues(t.String()).Inc()
	m.bytesOut.Add(float64(n))
}

func (m *metrics) protocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

func (m *metrics) disconnect(wasConnected, activeSession bool) {
	if m == nil {
		return
	}
	label := "false"
	if activeSession {
		label = "true"
	}
	m.disconnects.WithLabelValues(label).Inc()
	if wasConnected {
		m.connected.Dec()
	}
}
