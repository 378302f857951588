package engineclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/metric"
)

// clientMetrics holds Prometheus metrics for engine requests.
type clientMetrics struct {
	requests *prometheus.CounterVec   // by endpoint and status class
	duration *prometheus.HistogramVec // by endpoint
	core     *metric.Metrics
}

func newClientMetrics(registry *metric.MetricsRegistry) (*clientMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &clientMetrics{
		core: registry.CoreMetrics(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Engine requests by endpoint and status class",
		}, []string{"endpoint", "status"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "request_duration_seconds",
			Help:      "Engine request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	if err := registry.RegisterCounterVec("engine", "requests", m.requests); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "request_duration", m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *clientMetrics) recordRequest(endpoint, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, status).Inc()
	m.duration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *clientMetrics) recordError(err error) {
	if m == nil {
		return
	}
	m.core.RecordError("engineclient", errors.Classify(err).String())
}
