package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordAcceptAndDisconnect(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordAccept()
	m.RecordAccept()
	if got := gaugeValue(t, m.ClientsConnected); got != 2 {
		t.Errorf("ClientsConnected: got %v, want 2", got)
	}
	if got := counterValue(t, m.ClientsTotal); got != 2 {
		t.Errorf("ClientsTotal: got %v, want 2", got)
	}

	m.RecordDisconnect()
	if got := gaugeValue(t, m.ClientsConnected); got != 1 {
		t.Errorf("ClientsConnected after disconnect: got %v, want 1", got)
	}
	if got := counterValue(t, m.ClientsTotal); got != 2 {
		t.Errorf("ClientsTotal must not decrease: got %v, want 2", got)
	}
}

func TestRecordFrameByMessageType(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordFrame("2")
	m.RecordFrame("2")
	m.RecordFrame("3")

	if got := counterValue(t, m.FramesDispatched.WithLabelValues("2")); got != 2 {
		t.Errorf("type 2 count: got %v, want 2", got)
	}
	if got := counterValue(t, m.FramesDispatched.WithLabelValues("3")); got != 1 {
		t.Errorf("type 3 count: got %v, want 1", got)
	}
}

func TestSetChannelsActive(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetChannelsActive(5)
	if got := gaugeValue(t, m.ChannelsActive); got != 5 {
		t.Errorf("ChannelsActive: got %v, want 5", got)
	}
}
