package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func value(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var sum float64
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				sum += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				sum += g.GetValue()
			}
		}
		return sum
	}
	return 0
}

func TestCounters(t *testing.T) {
	m := New()
	m.MessagesReceived.WithLabelValues("heartbeat").Inc()
	m.MessagesReceived.WithLabelValues("heartbeat").Inc()
	m.MessagesReceived.WithLabelValues("pump_status").Inc()
	m.SafetyStops.Inc()

	if got := value(t, m, "beegreen_messages_received_total"); got != 3 {
		t.Errorf("messages_received_total: got %v, want 3", got)
	}
	if got := value(t, m, "beegreen_safety_stops_total"); got != 1 {
		t.Errorf("safety_stops_total: got %v, want 1", got)
	}
}

func TestSetBool(t *testing.T) {
	m := New()
	SetBool(m.PumpOn, true)
	if got := value(t, m, "beegreen_pump_on"); got != 1 {
		t.Errorf("pump_on: got %v, want 1", got)
	}
	SetBool(m.PumpOn, false)
	if got := value(t, m, "beegreen_pump_on"); got != 0 {
		t.Errorf("pump_on: got %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.CommandsPublished.WithLabelValues("pump_start").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `beegreen_commands_published_total{kind="pump_start"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
