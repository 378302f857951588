package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	flowengine "github.com/c360/flowcanvas/engine"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowstore"
)

// FakeEngine is an in-memory flowengine.Engine. Storage works out of the
// box; execution succeeds immediately unless ExecuteFunc says otherwise.
type FakeEngine struct {
	mu    sync.Mutex
	flows map[string]*flowstore.FlowDocument

	ExecuteFunc   func(ctx context.Context, doc *flowstore.FlowDocument) (*flowengine.ExecutionResult, error)
	StatusFunc    func(ctx context.Context, flowID string) (*flowengine.StatusReport, error)
	TerminateFunc func(ctx context.Context, flowID string) error

	// Submitted holds a copy of every document passed to Execute.
	Submitted []*flowstore.FlowDocument

	SaveCalls      int
	ExecuteCalls   int
	StatusCalls    int
	TerminateCalls int
}

var _ flowengine.Engine = (*FakeEngine)(nil)

// NewFakeEngine creates an engine whose runs complete at once.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		flows: make(map[string]*flowstore.FlowDocument),
		ExecuteFunc: func(_ context.Context, _ *flowstore.FlowDocument) (*flowengine.ExecutionResult, error) {
			return &flowengine.ExecutionResult{Success: true, Message: "ok"}, nil
		},
		StatusFunc: func(_ context.Context, _ string) (*flowengine.StatusReport, error) {
			return &flowengine.StatusReport{Status: flowengine.RunIdle}, nil
		},
		TerminateFunc: func(_ context.Context, _ string) error {
			return nil
		},
	}
}

// Save stores a copy of doc, assigning an id on first save.
func (e *FakeEngine) Save(ctx context.Context, doc *flowstore.FlowDocument) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.SaveCalls++

	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if current, ok := e.flows[doc.ID]; ok {
		doc.Version = current.Version + 1
		doc.CreatedAt = current.CreatedAt
	} else {
		doc.Version = 1
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.SchemaVersion = flowstore.SchemaVersion
	e.flows[doc.ID] = doc.Clone()
	return doc.ID, nil
}

// Load returns a copy of the stored flow.
func (e *FakeEngine) Load(ctx context.Context, id string) (*flowstore.FlowDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.flows[id]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrFlowNotFound, id), "FakeEngine", "Load", "flow lookup")
	}
	return doc.Clone(), nil
}

// List returns summaries of stored flows.
func (e *FakeEngine) List(ctx context.Context) ([]flowstore.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]flowstore.Summary, 0, len(e.flows))
	for _, doc := range e.flows {
		out = append(out, doc.Summarize())
	}
	flowstore.SortSummaries(out)
	return out, nil
}

// Delete removes a stored flow.
func (e *FakeEngine) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.flows[id]; !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrFlowNotFound, id), "FakeEngine", "Delete", "flow lookup")
	}
	delete(e.flows, id)
	return nil
}

// Put stores doc as is, bypassing validation. It seeds flows that the
// regular Save would refuse.
func (e *FakeEngine) Put(doc *flowstore.FlowDocument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flows[doc.ID] = doc.Clone()
}

// Execute records doc and delegates to ExecuteFunc.
func (e *FakeEngine) Execute(ctx context.Context, doc *flowstore.FlowDocument) (*flowengine.ExecutionResult, error) {
	e.mu.Lock()
	e.ExecuteCalls++
	e.Submitted = append(e.Submitted, doc.Clone())
	fn := e.ExecuteFunc
	e.mu.Unlock()
	return fn(ctx, doc)
}

// Status delegates to StatusFunc.
func (e *FakeEngine) Status(ctx context.Context, flowID string) (*flowengine.StatusReport, error) {
	e.mu.Lock()
	e.StatusCalls++
	fn := e.StatusFunc
	e.mu.Unlock()
	return fn(ctx, flowID)
}

// Terminate delegates to TerminateFunc.
func (e *FakeEngine) Terminate(ctx context.Context, flowID string) error {
	e.mu.Lock()
	e.TerminateCalls++
	fn := e.TerminateFunc
	e.mu.Unlock()
	return fn(ctx, flowID)
}

// LastSubmitted returns the most recent document passed to Execute.
func (e *FakeEngine) LastSubmitted() *flowstore.FlowDocument {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Submitted) == 0 {
		return nil
	}
	return e.Submitted[len(e.Submitted)-1]
}

// Counts returns the execute, status and terminate call counts.
func (e *FakeEngine) Counts() (execute, status, terminate int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ExecuteCalls, e.StatusCalls, e.TerminateCalls
}
