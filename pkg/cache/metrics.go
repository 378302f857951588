package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/flowcanvas/metric"
)

type cacheMetrics struct {
	ops  *prometheus.CounterVec
	size prometheus.Gauge
}

func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        "operations_total",
			ConstLabels: prometheus.Labels{"cache": prefix},
			Help:        "Cache operations by kind (hit, miss, set, delete, eviction)",
		}, []string{"op"}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"cache": prefix},
			Help:        "Current number of entries in cache",
		}),
	}

	if err := registry.RegisterCounterVec(prefix, "cache_operations", m.ops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "cache_size", m.size); err != nil {
		return nil, err
	}
	return m, nil
}

// recorder feeds both the always-on Statistics and the optional metrics.
type recorder struct {
	stats   *Statistics
	metrics *cacheMetrics
}

func newRecorder[V any](opts *settings[V]) (*recorder, error) {
	r := &recorder{stats: NewStatistics()}
	if opts.registry != nil {
		m, err := newCacheMetrics(opts.registry, opts.name)
		if err != nil {
			return nil, err
		}
		r.metrics = m
	}
	return r, nil
}

func (r *recorder) op(name string) {
	switch name {
	case "hit":
		r.stats.Hit()
	case "miss":
		r.stats.Miss()
	case "set":
		r.stats.Set()
	case "delete":
		r.stats.Delete()
	case "eviction":
		r.stats.Eviction()
	}
	if r.metrics != nil {
		r.metrics.ops.WithLabelValues(name).Inc()
	}
}

func (r *recorder) size(n int) {
	r.stats.UpdateSize(int64(n))
	if r.metrics != nil {
		r.metrics.size.Set(float64(n))
	}
}
