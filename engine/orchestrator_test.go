package flowengine

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowstore"
	"github.com/c360/flowcanvas/metric"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, doc *flowstore.FlowDocument) (*ExecutionResult, error) {
	args := m.Called(ctx, doc)
	res, _ := args.Get(0).(*ExecutionResult)
	return res, args.Error(1)
}

func (m *mockExecutor) Status(ctx context.Context, flowID string) (*StatusReport, error) {
	args := m.Called(ctx, flowID)
	if fn, ok := args.Get(0).(func(context.Context, string) *StatusReport); ok {
		return fn(ctx, flowID), args.Error(1)
	}
	rep, _ := args.Get(0).(*StatusReport)
	return rep, args.Error(1)
}

func (m *mockExecutor) Terminate(ctx context.Context, flowID string) error {
	return m.Called(ctx, flowID).Error(0)
}

// recorder collects observed states.
type recorder struct {
	mu     sync.Mutex
	states []State
	last   Snapshot
}

func (r *recorder) OnRunUpdate(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s.State)
	r.last = s
}

func (r *recorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func docWithNodes(n int) func() *flowstore.FlowDocument {
	return func() *flowstore.FlowDocument {
		doc := &flowstore.FlowDocument{ID: "flow-1", Name: "demo"}
		for i := 0; i < n; i++ {
			doc.Nodes = append(doc.Nodes, flowstore.NodeDoc{ID: string(rune('a' + i)), InstructionID: "x"})
		}
		return doc
	}
}

func TestSubmit_Completes(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, mock.Anything).
		Return(&ExecutionResult{Success: true, Data: map[string]any{"rows": 3.0}}, nil)

	o := New(exec)
	rec := &recorder{}
	o.Subscribe(rec)

	ok, err := o.Submit(context.Background(), docWithNodes(2))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []State{StateSubmitting, StateRunning, StateCompleted}, rec.seen())
	snap := o.Snapshot()
	assert.Equal(t, StateCompleted, snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, map[string]any{"rows": 3.0}, snap.Result.Data)
	assert.Nil(t, snap.Failure)
	assert.Equal(t, "flow-1", snap.FlowID)
	assert.Equal(t, int64(1), o.RunCount())
	exec.AssertExpectations(t)
}

func TestSubmit_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		result     *ExecutionResult
		err        error
		wantKind   FailureKind
		wantMsg    string
		wantIssues int
		wantStates []State
	}{
		{
			name:       "transport error",
			err:        errors.WrapTransient(stderrors.New("dial tcp: connection refused"), "Client", "Execute", "post"),
			wantKind:   FailureTransport,
			wantMsg:    "Client.Execute: post failed: dial tcp: connection refused",
			wantStates: []State{StateSubmitting, StateFailed},
		},
		{
			name: "server validation",
			err: &ValidationError{Issues: []Issue{
				{Message: "flow can only have one start node"},
				{Message: "node b is isolated", NodeID: "b"},
			}},
			wantKind:   FailureServerValidation,
			wantMsg:    "flow can only have one start node; node b is isolated",
			wantIssues: 2,
			wantStates: []State{StateSubmitting, StateFailed},
		},
		{
			name:       "execution failure",
			result:     &ExecutionResult{Success: false, Message: "sheet 'Q3' not found"},
			wantKind:   FailureExecution,
			wantMsg:    "sheet 'Q3' not found",
			wantStates: []State{StateSubmitting, StateRunning, StateFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := new(mockExecutor)
			exec.On("Execute", mock.Anything, mock.Anything).Return(tt.result, tt.err)

			o := New(exec)
			rec := &recorder{}
			o.Subscribe(rec)

			ok, err := o.Submit(context.Background(), docWithNodes(1))
			require.NoError(t, err)
			assert.True(t, ok)

			assert.Equal(t, tt.wantStates, rec.seen())
			snap := o.Snapshot()
			require.NotNil(t, snap.Failure)
			assert.Equal(t, tt.wantKind, snap.Failure.Kind)
			assert.Equal(t, tt.wantMsg, snap.Failure.Message)
			assert.Len(t, snap.Failure.Issues, tt.wantIssues)
			assert.False(t, snap.FinishedAt.IsZero())
		})
	}
}

func TestSubmit_Refusals(t *testing.T) {
	exec := new(mockExecutor)
	o := New(exec)

	ok, err := o.Submit(context.Background(), docWithNodes(0))
	assert.False(t, ok)
	assert.ErrorIs(t, err, errors.ErrEmptyGraph)
	assert.Equal(t, StateIdle, o.State())
	assert.Equal(t, int64(0), o.RunCount())
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestSubmit_WhileRunningIsNoOp(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, mock.Anything).
		Return(&ExecutionResult{Success: true, Pending: true}, nil).Once()
	release := make(chan struct{})
	exec.On("Status", mock.Anything, "flow-1").
		Run(func(mock.Arguments) { <-release }).
		Return(&StatusReport{Status: RunRunning}, nil).Maybe()

	o := New(exec, WithPollInterval(time.Millisecond))
	defer func() {
		close(release)
		o.Close()
	}()

	ok, err := o.Submit(context.Background(), docWithNodes(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateRunning, o.State())

	ok, err = o.Submit(context.Background(), docWithNodes(1))
	assert.False(t, ok)
	assert.ErrorIs(t, err, errors.ErrRunInProgress)
	assert.Equal(t, StateRunning, o.State())
	assert.Equal(t, int64(1), o.RunCount())
}

func TestSubmit_RequiresResetAfterFinish(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, mock.Anything).Return(&ExecutionResult{Success: true}, nil)
	o := New(exec)

	_, err := o.Submit(context.Background(), docWithNodes(1))
	require.NoError(t, err)

	ok, err := o.Submit(context.Background(), docWithNodes(1))
	assert.False(t, ok)
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)

	require.NoError(t, o.Reset())
	assert.Equal(t, StateIdle, o.State())
	assert.Nil(t, o.Snapshot().Result)

	ok, err = o.Submit(context.Background(), docWithNodes(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), o.RunCount())
}

func TestReset_OnlyFromTerminal(t *testing.T) {
	o := New(new(mockExecutor))
	err := o.Reset()
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, StateIdle, o.State())
}

func TestSubmit_PreSubmitRunsBeforeSnapshot(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, mock.MatchedBy(func(doc *flowstore.FlowDocument) bool {
		return doc.Nodes[0].Params["flushed"] == true
	})).Return(&ExecutionResult{Success: true}, nil)

	params := map[string]any{}
	o := New(exec, WithPreSubmit(func() { params["flushed"] = true }))

	ok, err := o.Submit(context.Background(), func() *flowstore.FlowDocument {
		return &flowstore.FlowDocument{Nodes: []flowstore.NodeDoc{{ID: "a", Params: copyParams(params)}}}
	})
	require.NoError(t, err)
	assert.True(t, ok)
	exec.AssertExpectations(t)
}

func TestSubmit_EmptyFlowSkipsPreSubmit(t *testing.T) {
	exec := new(mockExecutor)
	flushed, snapshots := 0, 0
	o := New(exec,
		WithPreSubmit(func() { flushed++ }),
		WithNodeCount(func() int { return 0 }))

	ok, err := o.Submit(context.Background(), func() *flowstore.FlowDocument {
		snapshots++
		return &flowstore.FlowDocument{}
	})
	assert.False(t, ok)
	assert.ErrorIs(t, err, errors.ErrEmptyGraph)
	assert.Zero(t, flushed)
	assert.Zero(t, snapshots)
	assert.Equal(t, StateIdle, o.Snapshot().State)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func copyParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func TestPolling_ReachesCompleted(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, mock.Anything).
		Return(&ExecutionResult{Success: true, Pending: true}, nil)
	exec.On("Status", mock.Anything, "flow-1").Return(&StatusReport{Status: RunRunning}, nil).Twice()
	exec.On("Status", mock.Anything, "flow-1").Return(nil, stderrors.New("temporary glitch")).Once()
	exec.On("Status", mock.Anything, "flow-1").
		Return(&StatusReport{Status: RunCompleted, Message: "done", Data: "ok"}, nil).Once()

	o := New(exec, WithPollInterval(time.Millisecond))
	defer o.Close()

	ok, err := o.Submit(context.Background(), docWithNodes(1))
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool { return o.State() == StateCompleted }, 2*time.Second, 5*time.Millisecond)
	snap := o.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, "ok", snap.Result.Data)
	exec.AssertExpectations(t)
}

func TestPolling_TooManyErrorsFails(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, mock.Anything).
		Return(&ExecutionResult{Pending: true, FlowID: "srv-7"}, nil)
	exec.On("Status", mock.Anything, "srv-7").Return(nil, stderrors.New("connection reset"))

	o := New(exec, WithPollInterval(time.Millisecond), WithMaxPollErrors(3))
	defer o.Close()

	_, err := o.Submit(context.Background(), func() *flowstore.FlowDocument {
		return &flowstore.FlowDocument{Nodes: []flowstore.NodeDoc{{ID: "a"}}}
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return o.State() == StateFailed }, 2*time.Second, 5*time.Millisecond)
	snap := o.Snapshot()
	assert.Equal(t, FailureTransport, snap.Failure.Kind)
	assert.Equal(t, "srv-7", snap.FlowID)
	exec.AssertNumberOfCalls(t, "Status", 3)
}

func TestTerminate_WaitsForConfirmation(t *testing.T) {
	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, mock.Anything).
		Return(&ExecutionResult{Success: true, Pending: true}, nil)

	var mu sync.Mutex
	terminated := false
	exec.On("Terminate", mock.Anything, "flow-1").Run(func(mock.Arguments) {
		mu.Lock()
		terminated = true
		mu.Unlock()
	}).Return(nil)
	exec.On("Status", mock.Anything, "flow-1").Return(func(context.Context, string) *StatusReport {
		mu.Lock()
		defer mu.Unlock()
		if terminated {
			return &StatusReport{Status: RunTerminated}
		}
		return &StatusReport{Status: RunRunning}
	}, nil)

	o := New(exec, WithPollInterval(20*time.Millisecond))
	defer o.Close()

	_, err := o.Submit(context.Background(), docWithNodes(1))
	require.NoError(t, err)

	require.NoError(t, o.Terminate(context.Background()))
	assert.Equal(t, StateRunning, o.State(), "terminate does not transition locally")

	require.Eventually(t, func() bool { return o.State() == StateFailed }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, FailureTerminated, o.Snapshot().Failure.Kind)
}

func TestTerminate_RequiresActiveRun(t *testing.T) {
	o := New(new(mockExecutor))
	assert.ErrorIs(t, o.Terminate(context.Background()), errors.ErrInvalidTransition)
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	exec := new(mockExecutor)
	exec.On("Execute", mock.Anything, mock.Anything).Return(&ExecutionResult{Success: false, Message: "boom"}, nil)

	o := New(exec, WithMetrics(registry))
	_, _ = o.Submit(context.Background(), docWithNodes(0))
	_, err := o.Submit(context.Background(), docWithNodes(1))
	require.NoError(t, err)

	m := o.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("refused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues(string(FailureExecution))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues(string(StateFailed))))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues(string(StateIdle))))
}

func TestParseRunStatus(t *testing.T) {
	tests := map[string]RunStatus{
		"running":   RunRunning,
		"EXECUTING": RunRunning,
		"success":   RunCompleted,
		"completed": RunCompleted,
		"error":     RunFailed,
		"stopped":   RunTerminated,
		"":          RunIdle,
		"whatever":  RunIdle,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseRunStatus(in), in)
	}
	assert.True(t, RunTerminated.Terminal())
	assert.False(t, RunRunning.Terminal())
}

func TestValidationError(t *testing.T) {
	err := error(&ValidationError{Message: "invalid flow", Issues: []Issue{{Message: "no end node"}}})
	assert.Equal(t, "invalid flow: no end node", err.Error())
	assert.ErrorIs(t, err, errors.ErrServerValidation)
	assert.True(t, errors.IsInvalid(err))
}
