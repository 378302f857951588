package flowengine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/flowcanvas/metric"
)

var allStates = []State{StateIdle, StateSubmitting, StateRunning, StateCompleted, StateFailed}

// orchestratorMetrics holds Prometheus metrics for run orchestration.
type orchestratorMetrics struct {
	submissions *prometheus.CounterVec   // by result: accepted, refused
	outcomes    *prometheus.CounterVec   // by outcome: completed or a failure kind
	duration    *prometheus.HistogramVec // by outcome
	polls       *prometheus.CounterVec   // by result: ok, error
	state       *prometheus.GaugeVec     // 1 for the current state
}

// newOrchestratorMetrics creates and registers the metrics. A nil registry
// disables them.
func newOrchestratorMetrics(registry *metric.MetricsRegistry) (*orchestratorMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &orchestratorMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "run",
			Name:      "submissions_total",
			Help:      "Run submissions by result",
		}, []string{"result"}),

		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "run",
			Name:      "outcomes_total",
			Help:      "Finished runs by outcome",
		}, []string{"outcome"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Time from submission to a terminal state",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"outcome"}),

		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "run",
			Name:      "status_polls_total",
			Help:      "Status polls by result",
		}, []string{"result"}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "run",
			Name:      "state",
			Help:      "Current orchestrator state (1 for the active state)",
		}, []string{"state"}),
	}

	if err := registry.RegisterCounterVec("run", "submissions", m.submissions); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("run", "outcomes", m.outcomes); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("run", "duration", m.duration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("run", "status_polls", m.polls); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("run", "state", m.state); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *orchestratorMetrics) recordSubmit(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "refused"
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *orchestratorMetrics) recordOutcome(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *orchestratorMetrics) recordPoll(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.polls.WithLabelValues("error").Inc()
		return
	}
	m.polls.WithLabelValues("ok").Inc()
}

func (m *orchestratorMetrics) setState(current State) {
	if m == nil {
		return
	}
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}
}
