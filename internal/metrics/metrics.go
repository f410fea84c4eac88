// Package metrics exposes lobby traffic to prometheus.
//
// A nil *Metrics is valid and records nothing, so servers built without a
// registry (tests, mostly) need no special casing.
package metrics

import (
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rudpnet"

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

type Metrics struct {
	packets      *prometheus.CounterVec
	packetBytes  *prometheus.HistogramVec
	reliableSent prometheus.Counter
	decodeErrors *prometheus.CounterVec
	backpressure prometheus.Counter
	clients      prometheus.Gauge
	evictions    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Packets sent and received, by direction and packet type.",
		}, []string{"direction", "type"}),

		packetBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "packet_bytes",
			Help:      "Size of packets in bytes, by direction.",
			Buckets:   []float64{8, 16, 32, 64, 128, 256, 512, 1024, 2048},
		}, []string{"direction"}),

		reliableSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reliable_elements_sent_total",
			Help:      "Reliable elements written to the wire, resends included.",
		}),

		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Packets that could not be processed, by error kind.",
		}, []string{"kind"}),

		backpressure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reliable_backpressure_total",
			Help:      "Times reliable elements were held back because the peer's buffer was full.",
		}),

		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients",
			Help:      "Clients currently holding a client id.",
		}),

		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Clients dropped after going silent.",
		}),
	}
}

func (m *Metrics) PacketSent(packetType protocol.PacketType, size, reliable int) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(DirectionOut, packetType.String()).Inc()
	m.packetBytes.WithLabelValues(DirectionOut).Observe(float64(size))
	m.reliableSent.Add(float64(reliable))
}

func (m *Metrics) PacketReceived(packetType protocol.PacketType, size int) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(DirectionIn, packetType.String()).Inc()
	m.packetBytes.WithLabelValues(DirectionIn).Observe(float64(size))
}

// DecodeError takes the kind as a label value, see rudp.ErrorKind.
func (m *Metrics) DecodeError(kind string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Backpressure() {
	if m == nil {
		return
	}
	m.backpressure.Inc()
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}
