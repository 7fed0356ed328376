package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the hub's Prometheus collectors.
type Metrics struct {
	Connected prometheus.Gauge
	Emitted   *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
}

// NewMetrics registers the hub collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "keikkaduuni",
			Subsystem: "ws",
			Name:      "connected_sockets",
			Help:      "Number of open websocket connections.",
		}),
		Emitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keikkaduuni",
			Subsystem: "ws",
			Name:      "events_emitted_total",
			Help:      "Events queued to sockets, by event name.",
		}, []string{"event"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keikkaduuni",
			Subsystem: "ws",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a socket's send queue was full.",
		}, []string{"event"}),
	}
}
