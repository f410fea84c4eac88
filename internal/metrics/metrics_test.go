package metrics_test

import (
	"testing"

	"github.com/blukai/rudpnet/internal/metrics"
	"github.com/blukai/rudpnet/internal/protocol"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(is *is.I, reg *prometheus.Registry) map[string][]*dto.Metric {
	families, err := reg.Gather()
	is.NoErr(err)

	out := make(map[string][]*dto.Metric, len(families))
	for _, family := range families {
		out[family.GetName()] = family.GetMetric()
	}
	return out
}

func label(m *dto.Metric, name string) string {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func TestMetrics(t *testing.T) {
	is := is.New(t)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.PacketSent(protocol.PacketTypeGameplay, 12, 3)
	m.PacketSent(protocol.PacketTypeGameplay, 20, 1)
	m.PacketReceived(protocol.PacketTypeRequest, 5)
	m.DecodeError("unknown_element")
	m.Backpressure()
	m.SetClients(2)
	m.Evicted()

	families := gather(is, reg)

	packets := families["rudpnet_packets_total"]
	is.Equal(len(packets), 2)
	for _, p := range packets {
		switch label(p, "direction") {
		case metrics.DirectionOut:
			is.Equal(label(p, "type"), "Gameplay")
			is.Equal(p.GetCounter().GetValue(), float64(2))
		case metrics.DirectionIn:
			is.Equal(label(p, "type"), "Request")
			is.Equal(p.GetCounter().GetValue(), float64(1))
		default:
			t.Fatalf("unexpected direction %q", label(p, "direction"))
		}
	}

	is.Equal(families["rudpnet_reliable_elements_sent_total"][0].GetCounter().GetValue(), float64(4))
	is.Equal(label(families["rudpnet_decode_errors_total"][0], "kind"), "unknown_element")
	is.Equal(families["rudpnet_reliable_backpressure_total"][0].GetCounter().GetValue(), float64(1))
	is.Equal(families["rudpnet_clients"][0].GetGauge().GetValue(), float64(2))
	is.Equal(families["rudpnet_evictions_total"][0].GetCounter().GetValue(), float64(1))
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics

	// must not panic
	m.PacketSent(protocol.PacketTypeHeartbeat, 5, 0)
	m.PacketReceived(protocol.PacketTypeHeartbeat, 5)
	m.DecodeError("other")
	m.Backpressure()
	m.SetClients(1)
	m.Evicted()
}
