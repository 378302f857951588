package statusws

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/flowcanvas/metric"
)

// hubMetrics holds Prometheus metrics for the status hub.
type hubMetrics struct {
	clients       prometheus.Gauge
	connections   prometheus.Counter
	disconnects   *prometheus.CounterVec // by reason
	updates       prometheus.Counter
	messagesSent  prometheus.Counter
	messageBytes  prometheus.Histogram
	publishErrors prometheus.Counter
}

func newHubMetrics(registry *metric.MetricsRegistry) (*hubMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &hubMetrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "statusws",
			Name:      "clients_connected",
			Help:      "Number of connected status clients",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "statusws",
			Name:      "client_connections_total",
			Help:      "Total status client connections",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "statusws",
			Name:      "client_disconnections_total",
			Help:      "Status client disconnections by reason",
		}, []string{"reason"}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "statusws",
			Name:      "updates_total",
			Help:      "Run updates received from the orchestrator",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "statusws",
			Name:      "messages_sent_total",
			Help:      "Messages written to status clients",
		}),
		messageBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "statusws",
			Name:      "message_size_bytes",
			Help:      "Size of outgoing status messages",
			Buckets:   []float64{100, 500, 1000, 2000, 5000, 10000, 25000},
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "statusws",
			Name:      "publish_errors_total",
			Help:      "Failed NATS publishes of run updates",
		}),
	}

	if err := registry.RegisterGauge("statusws", "clients_connected", m.clients); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("statusws", "client_connections", m.connections); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("statusws", "client_disconnections", m.disconnects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("statusws", "updates", m.updates); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("statusws", "messages_sent", m.messagesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("statusws", "message_size", m.messageBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("statusws", "publish_errors", m.publishErrors); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *hubMetrics) connected(count int) {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.clients.Set(float64(count))
}

func (m *hubMetrics) disconnected(reason string, count int) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(reason).Inc()
	m.clients.Set(float64(count))
}

func (m *hubMetrics) update() {
	if m == nil {
		return
	}
	m.updates.Inc()
}

func (m *hubMetrics) sent(size int) {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
	m.messageBytes.Observe(float64(size))
}

func (m *hubMetrics) publishFailed() {
	if m == nil {
		return
	}
	m.publishErrors.Inc()
}
