package flowengine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowstore"
	"github.com/c360/flowcanvas/metric"
)

// State is the orchestrator state.
type State string

// Orchestrator states
const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Busy reports whether a run is in flight.
func (s State) Busy() bool {
	return s == StateSubmitting || s == StateRunning
}

// Terminal reports whether s waits for Reset.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// FailureKind classifies why a run failed.
type FailureKind string

// Failure kinds
const (
	FailureTransport        FailureKind = "transport"
	FailureServerValidation FailureKind = "server_validation"
	FailureExecution        FailureKind = "execution"
	FailureTerminated       FailureKind = "terminated"
)

// Failure describes a failed run. Message is passed through from the
// engine or transport unchanged.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Issues  []Issue     `json:"issues,omitempty"`
}

// Snapshot is the observable orchestrator state.
type Snapshot struct {
	State      State            `json:"state"`
	RunID      int64            `json:"run_id"`
	FlowID     string           `json:"flow_id,omitempty"`
	Result     *ExecutionResult `json:"result,omitempty"`
	Failure    *Failure         `json:"failure,omitempty"`
	StartedAt  time.Time        `json:"started_at,omitzero"`
	FinishedAt time.Time        `json:"finished_at,omitzero"`
}

// Observer receives a snapshot after every transition. Observers are
// called in transition order and must not call Submit, Reset or Close.
type Observer interface {
	OnRunUpdate(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

// OnRunUpdate implements Observer.
func (f ObserverFunc) OnRunUpdate(s Snapshot) { f(s) }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics registers orchestrator metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *Orchestrator) {
		o.registry = registry
	}
}

// WithPollInterval sets how often Status is polled for pending runs.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxPollErrors sets how many consecutive Status failures end a
// pending run as a transport failure.
func WithMaxPollErrors(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxPollErrors = n
		}
	}
}

// WithPreSubmit sets a hook run before the document snapshot is taken,
// typically flushing the focused parameter panel into the graph. The hook
// must not call back into the orchestrator.
func WithPreSubmit(fn func()) Option {
	return func(o *Orchestrator) {
		o.preSubmit = fn
	}
}

// WithNodeCount lets Submit refuse an empty flow before the pre-submit hook
// runs, so a refused submit leaves the graph untouched.
func WithNodeCount(fn func() int) Option {
	return func(o *Orchestrator) {
		o.nodeCount = fn
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator drives one flow through submit, run and result. Only one
// run is active at a time; a finished run must be Reset before the next.
type Orchestrator struct {
	mu   sync.Mutex
	snap Snapshot
	runs int64

	// cancels polling of the current run
	stopPoll context.CancelFunc
	wg       sync.WaitGroup

	notifyMu  sync.Mutex
	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int

	executor      Executor
	preSubmit     func()
	nodeCount     func() int
	pollInterval  time.Duration
	maxPollErrors int
	now           func() time.Time
	logger        *slog.Logger
	registry      *metric.MetricsRegistry
	metrics       *orchestratorMetrics
}

// New creates an idle orchestrator.
func New(executor Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		snap:          Snapshot{State: StateIdle},
		observers:     make(map[int]Observer),
		executor:      executor,
		pollInterval:  time.Second,
		maxPollErrors: 5,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	metrics, err := newOrchestratorMetrics(o.registry)
	if err != nil {
		o.logger.Error("Failed to initialize orchestrator metrics", "error", err)
	}
	o.metrics = metrics
	o.metrics.setState(StateIdle)
	return o
}

// Subscribe registers an observer and returns a function removing it.
func (o *Orchestrator) Subscribe(obs Observer) func() {
	o.obsMu.Lock()
	id := o.nextObs
	o.nextObs++
	o.observers[id] = obs
	o.obsMu.Unlock()
	return func() {
		o.obsMu.Lock()
		delete(o.observers, id)
		o.obsMu.Unlock()
	}
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.Snapshot().State
}

// RunCount returns how many runs have been submitted.
func (o *Orchestrator) RunCount() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runs
}

// transition sets the new snapshot, releases o.mu and notifies observers in
// order. Callers hold o.mu.
func (o *Orchestrator) transition(next Snapshot) {
	prev := o.snap.State
	o.snap = next
	o.notifyMu.Lock()
	o.mu.Unlock()
	defer o.notifyMu.Unlock()

	o.logger.Debug("Run state changed", "from", prev, "to", next.State, "run_id", next.RunID, "flow_id", next.FlowID)
	o.metrics.setState(next.State)

	o.obsMu.RLock()
	observers := make([]Observer, 0, len(o.observers))
	for i := 0; i < o.nextObs; i++ {
		if obs, ok := o.observers[i]; ok {
			observers = append(observers, obs)
		}
	}
	o.obsMu.RUnlock()
	for _, obs := range observers {
		obs.OnRunUpdate(next)
	}
}

// Submit starts a run from the document returned by snapshot.
//
// It refuses, returning false and leaving the state unchanged, when a run
// is in flight, when the previous run has not been Reset, or when the
// document has no nodes. Otherwise it returns true once the engine has
// answered; the outcome is reported through the state and observers.
func (o *Orchestrator) Submit(ctx context.Context, snapshot func() *flowstore.FlowDocument) (bool, error) {
	o.mu.Lock()
	switch {
	case o.snap.State.Busy():
		o.mu.Unlock()
		o.metrics.recordSubmit(false)
		return false, errors.WrapInvalid(errors.ErrRunInProgress, "Orchestrator", "Submit", "state guard")
	case o.snap.State != StateIdle:
		state := o.snap.State
		o.mu.Unlock()
		o.metrics.recordSubmit(false)
		return false, errors.WrapInvalid(fmt.Errorf("%w: submit from %s", errors.ErrInvalidTransition, state),
			"Orchestrator", "Submit", "state guard")
	}

	if o.nodeCount != nil && o.nodeCount() == 0 {
		o.mu.Unlock()
		o.metrics.recordSubmit(false)
		return false, errors.WrapInvalid(errors.ErrEmptyGraph, "Orchestrator", "Submit", "node guard")
	}
	if o.preSubmit != nil {
		o.preSubmit()
	}
	doc := snapshot()
	if doc == nil || len(doc.Nodes) == 0 {
		o.mu.Unlock()
		o.metrics.recordSubmit(false)
		return false, errors.WrapInvalid(errors.ErrEmptyGraph, "Orchestrator", "Submit", "node guard")
	}

	o.runs++
	runID := o.runs
	started := o.now()
	o.metrics.recordSubmit(true)
	o.transition(Snapshot{State: StateSubmitting, RunID: runID, FlowID: doc.ID, StartedAt: started})

	res, err := o.executor.Execute(ctx, doc)

	o.mu.Lock()
	next := o.snap

	if err != nil {
		next.Failure = classifyFailure(err)
		o.finish(next, StateFailed)
		return true, nil
	}
	if res == nil {
		res = &ExecutionResult{}
	}
	if res.FlowID != "" {
		next.FlowID = res.FlowID
	}

	next.State = StateRunning
	if res.Pending {
		if next.FlowID == "" {
			next.Failure = &Failure{Kind: FailureTransport, Message: "engine accepted the run without a flow id"}
			o.finish(next, StateFailed)
			return true, nil
		}
		pollCtx, cancel := context.WithCancel(context.Background())
		o.stopPoll = cancel
		o.wg.Add(1)
		o.transition(next)
		go o.poll(pollCtx, runID, next.FlowID)
		return true, nil
	}

	o.transition(next)
	o.mu.Lock()
	next = o.snap
	if res.Success {
		next.Result = res
		o.finish(next, StateCompleted)
	} else {
		next.Failure = &Failure{Kind: FailureExecution, Message: res.Message}
		o.finish(next, StateFailed)
	}
	return true, nil
}

// finish moves to a terminal state. Callers hold o.mu.
func (o *Orchestrator) finish(next Snapshot, state State) {
	next.State = state
	next.FinishedAt = o.now()
	if o.stopPoll != nil {
		o.stopPoll()
		o.stopPoll = nil
	}

	outcome := "completed"
	if next.Failure != nil {
		outcome = string(next.Failure.Kind)
		o.logger.Warn("Run failed", "run_id", next.RunID, "flow_id", next.FlowID,
			"kind", next.Failure.Kind, "message", next.Failure.Message)
	} else {
		o.logger.Info("Run completed", "run_id", next.RunID, "flow_id", next.FlowID)
	}
	o.metrics.recordOutcome(outcome, next.FinishedAt.Sub(next.StartedAt))
	o.transition(next)
}

func classifyFailure(err error) *Failure {
	var verr *ValidationError
	if stderrors.As(err, &verr) {
		return &Failure{
			Kind:    FailureServerValidation,
			Message: verr.Error(),
			Issues:  append([]Issue(nil), verr.Issues...),
		}
	}
	return &Failure{Kind: FailureTransport, Message: err.Error()}
}

// poll follows a pending run until it ends or polling is cancelled.
func (o *Orchestrator) poll(ctx context.Context, runID int64, flowID string) {
	defer o.wg.Done()
	limiter := rate.NewLimiter(rate.Every(o.pollInterval), 1)
	failures := 0

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		report, err := o.executor.Status(ctx, flowID)
		if ctx.Err() != nil {
			return
		}
		o.metrics.recordPoll(err)
		if err != nil {
			failures++
			o.logger.Debug("Status poll failed", "flow_id", flowID, "attempt", failures, "error", err)
			if failures < o.maxPollErrors {
				continue
			}
			o.complete(runID, nil, &Failure{Kind: FailureTransport, Message: err.Error()})
			return
		}
		failures = 0

		switch report.Status {
		case RunCompleted:
			o.complete(runID, &ExecutionResult{Success: true, Message: report.Message, Data: report.Data, FlowID: flowID}, nil)
			return
		case RunFailed:
			o.complete(runID, nil, &Failure{Kind: FailureExecution, Message: report.Message})
			return
		case RunTerminated:
			msg := report.Message
			if msg == "" {
				msg = "run terminated"
			}
			o.complete(runID, nil, &Failure{Kind: FailureTerminated, Message: msg})
			return
		}
	}
}

// complete ends run runID unless it was already superseded.
func (o *Orchestrator) complete(runID int64, result *ExecutionResult, failure *Failure) {
	o.mu.Lock()
	if o.snap.RunID != runID || o.snap.State != StateRunning {
		o.mu.Unlock()
		return
	}
	next := o.snap
	if failure != nil {
		next.Failure = failure
		o.finish(next, StateFailed)
		return
	}
	next.Result = result
	o.finish(next, StateCompleted)
}

// Terminate asks the engine to stop the active run. The state does not
// change here; a pending run ends when Status reports it terminated.
func (o *Orchestrator) Terminate(ctx context.Context) error {
	snap := o.Snapshot()
	if !snap.State.Busy() {
		return errors.WrapInvalid(fmt.Errorf("%w: terminate from %s", errors.ErrInvalidTransition, snap.State),
			"Orchestrator", "Terminate", "state guard")
	}
	if snap.FlowID == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: run has no flow id", errors.ErrInvalidData),
			"Orchestrator", "Terminate", "flow id check")
	}
	if err := o.executor.Terminate(ctx, snap.FlowID); err != nil {
		return errors.Wrap(err, "Orchestrator", "Terminate", "terminate request")
	}
	o.logger.Info("Termination requested", "run_id", snap.RunID, "flow_id", snap.FlowID)
	return nil
}

// Reset returns a finished run to Idle. It fails with ErrInvalidTransition
// from any other state.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if !o.snap.State.Terminal() {
		state := o.snap.State
		o.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("%w: reset from %s", errors.ErrInvalidTransition, state),
			"Orchestrator", "Reset", "state guard")
	}
	o.transition(Snapshot{State: StateIdle, RunID: o.snap.RunID})
	return nil
}

// Close stops any polling and waits for it to exit. The current state is
// kept.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.stopPoll != nil {
		o.stopPoll()
		o.stopPoll = nil
	}
	o.mu.Unlock()
	o.wg.Wait()
}
