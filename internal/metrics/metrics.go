// Package metrics provides Prometheus instrumentation for the realtime relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay process.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	RoomsActive       prometheus.Gauge
	EventsTotal       *prometheus.CounterVec
	DeliveriesTotal   *prometheus.CounterVec
	EventErrorsTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "realtime_connections_active",
				Help: "Number of registered client connections.",
			},
		),
		RoomsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "realtime_rooms_active",
				Help: "Number of project rooms with at least one member.",
			},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_events_total",
				Help: "Inbound client events by kind.",
			},
			[]string{"event"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_deliveries_total",
				Help: "Outbound deliveries by event kind and result.",
			},
			[]string{"event", "result"},
		),
		EventErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_event_errors_total",
				Help: "Events rejected before fan-out, by kind and error code.",
			},
			[]string{"event", "code"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.RoomsActive,
		m.EventsTotal,
		m.DeliveriesTotal,
		m.EventErrorsTotal,
	)
	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
