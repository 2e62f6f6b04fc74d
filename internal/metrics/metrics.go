// Package metrics holds the client's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "beegreen"

// Metrics is a set of counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived  *prometheus.CounterVec
	MalformedPayloads *prometheus.CounterVec
	CommandsPublished *prometheus.CounterVec
	SafetyStops       prometheus.Counter
	ConnectFailures   *prometheus.CounterVec
	ConnectionsLost   prometheus.Counter
	DeviceOnline      prometheus.Gauge
	PumpOn            prometheus.Gauge
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound MQTT messages by topic role.",
		}, []string{"role"}),
		MalformedPayloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_payloads_total",
			Help:      "Inbound payloads that could not be decoded, by topic role.",
		}, []string{"role"}),
		CommandsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_published_total",
			Help:      "Outbound commands by kind.",
		}, []string{"kind"}),
		SafetyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_stops_total",
			Help:      "Pump runs ended by the client-side safety timer.",
		}),
		ConnectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Failed broker connection attempts by reason.",
		}, []string{"reason"}),
		ConnectionsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_lost_total",
			Help:      "Established broker sessions that dropped.",
		}),
		DeviceOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_online",
			Help:      "1 while the device is considered online.",
		}),
		PumpOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_on",
			Help:      "1 while the pump is believed to be running.",
		}),
	}
	m.registry.MustRegister(
		m.MessagesReceived,
		m.MalformedPayloads,
		m.CommandsPublished,
		m.SafetyStops,
		m.ConnectFailures,
		m.ConnectionsLost,
		m.DeviceOnline,
		m.PumpOn,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetBool sets a gauge to 1 or 0.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
