// Package metrics exposes the relay's Prometheus counters and gauges:
// bytes sent/received, datagram receives posted, and client/channel
// population gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lacewing"

// Metrics holds every collector the relay registers.
type Metrics struct {
	ClientsConnected prometheus.Gauge
	ClientsTotal     prometheus.Counter
	ChannelsActive   prometheus.Gauge

	BytesSent     prometheus.Counter
	BytesReceived prometheus.Counter

	FramesDispatched *prometheus.CounterVec
	DatagramsPosted  prometheus.Counter

	ProtocolViolations *prometheus.CounterVec
	PingTimeouts       prometheus.Counter

	TransportErrors *prometheus.CounterVec
}

// New registers every collector against reg and returns the handle used to
// record relay events. Pass prometheus.NewRegistry() for tests so repeated
// construction doesn't collide with the global DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ClientsConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "clients_connected", Help: "Currently connected clients.",
		}),
		ClientsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "clients_accepted_total", Help: "Total accepted client connections.",
		}),
		ChannelsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "channels_active", Help: "Currently live channels.",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_sent_total", Help: "Total bytes written to any carrier.",
		}),
		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_received_total", Help: "Total bytes read from any carrier.",
		}),
		FramesDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dispatched_total", Help: "Total frames handed to the dispatcher, by message type.",
		}, []string{"message_type"}),
		DatagramsPosted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "datagrams_posted_total", Help: "Total datagram receives posted.",
		}),
		ProtocolViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "protocol_violations_total", Help: "Total protocol-violation disconnects, by reason.",
		}, []string{"reason"}),
		PingTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ping_timeouts_total", Help: "Total clients disconnected for a missed pong.",
		}),
		TransportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transport_errors_total", Help: "Total HandlerError notifications, by context string.",
		}, []string{"context"}),
	}
}

// RecordAccept records one newly accepted client.
func (m *Metrics) RecordAccept() {
	m.ClientsConnected.Inc()
	m.ClientsTotal.Inc()
}

// RecordDisconnect records one client leaving.
func (m *Metrics) RecordDisconnect() {
	m.ClientsConnected.Dec()
}

// SetChannelsActive sets the live-channel gauge to count.
func (m *Metrics) SetChannelsActive(count int) {
	m.ChannelsActive.Set(float64(count))
}

// RecordFrame records one dispatched frame of the given message type.
func (m *Metrics) RecordFrame(messageType string) {
	m.FramesDispatched.WithLabelValues(messageType).Inc()
}

// RecordDatagramPosted records one datagram receive posted to the dispatcher.
func (m *Metrics) RecordDatagramPosted() {
	m.DatagramsPosted.Inc()
}

// RecordBytesSent adds n to the total bytes written to any carrier.
func (m *Metrics) RecordBytesSent(n uint64) {
	m.BytesSent.Add(float64(n))
}

// RecordBytesReceived adds n to the total bytes read from any carrier.
func (m *Metrics) RecordBytesReceived(n uint64) {
	m.BytesReceived.Add(float64(n))
}

// RecordViolation records one protocol-violation disconnect, by reason.
func (m *Metrics) RecordViolation(reason string) {
	m.ProtocolViolations.WithLabelValues(reason).Inc()
}

// RecordPingTimeout records one liveness-sweep disconnect.
func (m *Metrics) RecordPingTimeout() {
	m.PingTimeouts.Inc()
}

// RecordTransportError records one HandlerError notification, by context.
func (m *Metrics) RecordTransportError(context string) {
	m.TransportErrors.WithLabelValues(context).Inc()
}
