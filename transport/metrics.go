package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "x11_emulator"

// Metrics are the Prometheus metrics the emulator exports.
type Metrics struct {
	RequestsTotal         *prometheus.CounterVec
	ErrorsTotal           *prometheus.CounterVec
	EventsTotal           *prometheus.CounterVec
	HandshakesTotal       *prometheus.CounterVec
	RectanglesFilledTotal prometheus.Counter
	ActiveConnections     prometheus.Gauge
}

// NewMetrics registers the emulator metrics with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Total number of requests received, by request name",
		}, []string{"request"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Total number of error records sent, by error name",
		}, []string{"error"}),

		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Total number of events sent, by event code",
		}, []string{"code"}),

		HandshakesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshakes_total",
			Help:      "Total number of connection setups, by status",
		}, []string{"status"}),

		RectanglesFilledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rectangles_filled_total",
			Help:      "Total number of rectangles filled",
		}),

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_connections",
			Help:      "Number of clients past the handshake",
		}),
	}
}
