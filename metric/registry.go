package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/flowcanvas/errors"
)

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with the core metrics
// and Go runtime collectors registered.
func NewMetricsRegistry() *MetricsRegistry {
	registry := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		registeredMetrics:  make(map[string]prometheus.Collector),
		Metrics:            NewMetrics(),
	}

	registry.prometheusRegistry.MustRegister(registry.Metrics.collectors()...)
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the process-level metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// RegisterCounter registers a counter metric for a service
func (r *MetricsRegistry) RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error {
	return r.register(serviceName, metricName, "RegisterCounter", counter)
}

// RegisterGauge registers a gauge metric for a service
func (r *MetricsRegistry) RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error {
	return r.register(serviceName, metricName, "RegisterGauge", gauge)
}

// RegisterCounterVec registers a counter vector metric for a service
func (r *MetricsRegistry) RegisterCounterVec(serviceName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register(serviceName, metricName, "RegisterCounterVec", counterVec)
}

// RegisterGaugeVec registers a gauge vector metric for a service
func (r *MetricsRegistry) RegisterGaugeVec(serviceName, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register(serviceName, metricName, "RegisterGaugeVec", gaugeVec)
}

// RegisterHistogramVec registers a histogram vector metric for a service
func (r *MetricsRegistry) RegisterHistogramVec(
	serviceName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register(serviceName, metricName, "RegisterHistogramVec", histogramVec)
}

// RegisterHistogram registers a histogram metric for a service
func (r *MetricsRegistry) RegisterHistogram(serviceName, metricName string, histogram prometheus.Histogram) error {
	return r.register(serviceName, metricName, "RegisterHistogram", histogram)
}

// metricKey names a metric within its owning service.
func metricKey(serviceName, metricName string) string {
	return serviceName + "." + metricName
}

// register adds c under serviceName.metricName. Registering the same key
// twice is invalid; a Prometheus descriptor clash is invalid too, any other
// Prometheus failure is fatal.
func (r *MetricsRegistry) register(serviceName, metricName, method string, c prometheus.Collector) error {
	key := metricKey(serviceName, metricName)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.registeredMetrics[key]; taken {
		return errors.WrapInvalid(fmt.Errorf("%s is already registered", key),
			"MetricsRegistry", method, "register metric")
	}

	err := r.prometheusRegistry.Register(c)
	var clash prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
		r.registeredMetrics[key] = c
		return nil
	case stderrors.As(err, &clash):
		return errors.WrapInvalid(err, "MetricsRegistry", method, "register "+key)
	default:
		return errors.WrapFatal(err, "MetricsRegistry", method, "register "+key)
	}
}

// Unregister removes serviceName.metricName. It reports false when the
// metric was never registered here.
func (r *MetricsRegistry) Unregister(serviceName, metricName string) bool {
	key := metricKey(serviceName, metricName)

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.registeredMetrics[key]
	if !ok || !r.prometheusRegistry.Unregister(c) {
		return false
	}
	delete(r.registeredMetrics, key)
	return true
}
