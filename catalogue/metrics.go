package catalogue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/flowcanvas/metric"
)

type catalogueMetrics struct {
	fetches      *prometheus.CounterVec
	instructions prometheus.Gauge
	skipped      prometheus.Counter
}

func newCatalogueMetrics(registry *metric.MetricsRegistry) (*catalogueMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &catalogueMetrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "catalogue",
			Name:      "fetches_total",
			Help:      "Catalogue fetches from the source by outcome",
		}, []string{"outcome"}),
		instructions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "catalogue",
			Name:      "instructions",
			Help:      "Instructions currently cached",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "catalogue",
			Name:      "invalid_definitions_total",
			Help:      "Instruction definitions skipped because they failed validation",
		}),
	}
	if err := registry.RegisterCounterVec("catalogue", "fetches", m.fetches); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("catalogue", "instructions", m.instructions); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("catalogue", "invalid_definitions", m.skipped); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *catalogueMetrics) recordFetch(outcome string, size int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		m.instructions.Set(float64(size))
	}
}

func (m *catalogueMetrics) recordSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}
