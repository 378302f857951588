// Package metric provides the Prometheus registry shared by flowcanvas
// components and an HTTP server that exposes it.
//
// Components never register with the global Prometheus registry. Each one
// takes a *MetricsRegistry (which may be nil) and builds its own metric set:
//
//	type orchestratorMetrics struct {
//	    submissions *prometheus.CounterVec
//	}
//
//	func newOrchestratorMetrics(registry *metric.MetricsRegistry) *orchestratorMetrics {
//	    if registry == nil {
//	        return nil
//	    }
//	    ...
//	}
//
// Record methods on such sets are nil-safe so callers do not branch on
// whether metrics are enabled. Registration keys are "service.metric";
// registering the same key twice returns an invalid-class error.
//
// NewMetricsRegistry also registers the Go runtime and process collectors
// and the core metrics in Metrics (build info, error counts by class, NATS
// connectivity, status WebSocket clients).
package metric
