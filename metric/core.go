package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by flowcanvas.
const Namespace = "flowcanvas"

// Metrics contains process-level metrics shared by all components.
// Component-specific metrics live with their component.
type Metrics struct {
	BuildInfo     *prometheus.GaugeVec
	ErrorsTotal   *prometheus.CounterVec
	NATSConnected prometheus.Gauge
	WSClients     prometheus.Gauge
}

// NewMetrics creates the core metric set
func NewMetrics() *Metrics {
	return &Metrics{
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "build_info",
				Help:      "Build information, always 1",
			},
			[]string{"version"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "errors_total",
				Help:      "Errors by component and error class",
			},
			[]string{"component", "class"},
		),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (1=connected, 0=disconnected)",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "statusws",
			Name:      "clients",
			Help:      "Connected run-status WebSocket clients",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.BuildInfo, m.ErrorsTotal, m.NATSConnected, m.WSClients}
}

// RecordError counts an error for a component under its class label.
func (m *Metrics) RecordError(component, class string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}
