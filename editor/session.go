package editor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360/flowcanvas/binder"
	"github.com/c360/flowcanvas/canvas"
	"github.com/c360/flowcanvas/catalogue"
	flowengine "github.com/c360/flowcanvas/engine"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowgraph"
	"github.com/c360/flowcanvas/flowstore"
	"github.com/c360/flowcanvas/metric"
	"github.com/c360/flowcanvas/port"
)

// CodeUnresolved marks a node whose instruction is missing from the
// catalogue. Such a node cannot be validated or run.
const CodeUnresolved = "unresolved"

// Deps are the collaborators of a Session. Catalogue is required. Store is
// needed for Save and Load, Engine for Run.
type Deps struct {
	Catalogue *catalogue.Catalogue
	Store     flowstore.Store
	Engine    flowengine.Executor
	Surface   canvas.Surface
	Logger    *slog.Logger
	Metrics   *metric.MetricsRegistry

	PollInterval  time.Duration
	MaxPollErrors int
	IDGenerator   func() string
}

// Session is one open flow.
type Session struct {
	catalogue *catalogue.Catalogue
	store     flowstore.Store
	logger    *slog.Logger

	graph      *flowgraph.Graph
	events     *canvas.Events
	projection *canvas.Projection
	orch       *flowengine.Orchestrator

	mu      sync.Mutex
	meta    flowstore.Meta
	focused *binder.FormModel
	report  flowstore.LoadReport
}

// New creates an empty session.
func New(deps Deps) (*Session, error) {
	if deps.Catalogue == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: catalogue", errors.ErrMissingConfig), "Session", "New", "dependency check")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		catalogue: deps.Catalogue,
		store:     deps.Store,
		logger:    logger.With("component", "editor"),
	}

	graphOpts := []flowgraph.Option{flowgraph.WithLogger(s.logger)}
	if deps.IDGenerator != nil {
		graphOpts = append(graphOpts, flowgraph.WithIDGenerator(deps.IDGenerator))
	}
	if deps.Surface != nil {
		graphOpts = append(graphOpts, flowgraph.WithSizeFunc(canvas.SizeFunc(deps.Surface)))
	}
	s.graph = flowgraph.New(graphOpts...)

	s.events = canvas.NewEvents(s.graph, s.catalogue,
		canvas.WithEventsLogger(s.logger),
		canvas.OnSelect(s.onSelect))
	if deps.Surface != nil {
		s.projection = canvas.NewProjection(deps.Surface, canvas.WithLogger(s.logger))
		s.projection.Rebuild(s.graph)
	}

	if deps.Engine != nil {
		orchOpts := []flowengine.Option{
			flowengine.WithLogger(s.logger),
			flowengine.WithPreSubmit(s.flushFocused),
			flowengine.WithNodeCount(s.graph.NodeCount),
		}
		if deps.Metrics != nil {
			orchOpts = append(orchOpts, flowengine.WithMetrics(deps.Metrics))
		}
		if deps.PollInterval > 0 {
			orchOpts = append(orchOpts, flowengine.WithPollInterval(deps.PollInterval))
		}
		if deps.MaxPollErrors > 0 {
			orchOpts = append(orchOpts, flowengine.WithMaxPollErrors(deps.MaxPollErrors))
		}
		s.orch = flowengine.New(deps.Engine, orchOpts...)
	}
	return s, nil
}

// Graph returns the graph of the open flow.
func (s *Session) Graph() *flowgraph.Graph { return s.graph }

// Events returns the handler surface events should be delivered to.
func (s *Session) Events() *canvas.Events { return s.events }

// Orchestrator returns the run orchestrator, or nil without an engine.
func (s *Session) Orchestrator() *flowengine.Orchestrator { return s.orch }

// Meta returns the document fields of the open flow.
func (s *Session) Meta() flowstore.Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// SetName renames the open flow.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	s.meta.Name = name
	s.mu.Unlock()
}

// SetDescription sets the description of the open flow.
func (s *Session) SetDescription(description string) {
	s.mu.Lock()
	s.meta.Description = description
	s.mu.Unlock()
}

// LastLoadReport returns the repairs made by the most recent Load.
func (s *Session) LastLoadReport() flowstore.LoadReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// DefaultFlowName names a flow saved without a name.
func DefaultFlowName(at time.Time) string {
	return "Untitled flow " + at.Format("2006-01-02 15:04:05")
}

// Document snapshots the open flow.
func (s *Session) Document() *flowstore.FlowDocument {
	return flowstore.ToDocument(s.graph, s.Meta())
}

// DropInstruction places a node for instructionID at pos. Its parameters
// start from the instruction defaults.
func (s *Session) DropInstruction(ctx context.Context, instructionID string, pos port.Point) (flowgraph.Node, error) {
	return s.events.HandleDrop(ctx, canvas.DropEvent{InstructionID: instructionID, Position: pos})
}

// Focus binds the parameter panel to nodeID, replacing any previous focus.
func (s *Session) Focus(nodeID string) (*binder.FormModel, error) {
	node, ok := s.graph.Node(nodeID)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrNodeNotFound, nodeID), "Session", "Focus", "node lookup")
	}
	inst, ok := s.catalogue.Lookup(node.InstructionID)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrNoInstruction, node.InstructionID),
			"Session", "Focus", "instruction lookup")
	}

	form := binder.Bind(node, inst, s.graph, binder.WithLogger(s.logger))
	s.mu.Lock()
	s.focused = form
	s.mu.Unlock()
	s.logger.Debug("Node focused", "node_id", nodeID, "instruction_id", inst.ID)
	return form, nil
}

// Focused returns the bound panel, or nil.
func (s *Session) Focused() *binder.FormModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// Edit updates a field of the focused panel. The value reaches the node
// immediately.
func (s *Session) Edit(name string, value any) error {
	form := s.Focused()
	if form == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: no node focused", errors.ErrNotInitialized), "Session", "Edit", "focus check")
	}
	return form.UpdateValue(name, value)
}

// Blur drops the focused panel.
func (s *Session) Blur() {
	s.mu.Lock()
	s.focused = nil
	s.mu.Unlock()
}

func (s *Session) onSelect(ev canvas.ClickEvent) {
	if ev.NodeID == "" {
		s.Blur()
		return
	}
	if _, err := s.Focus(ev.NodeID); err != nil {
		s.logger.Debug("Selection not bound", "node_id", ev.NodeID, "error", err)
		s.Blur()
	}
}

func (s *Session) flushFocused() {
	form := s.Focused()
	if form == nil {
		return
	}
	// The node may have been deleted while focused.
	if _, ok := s.graph.Node(form.NodeID()); !ok {
		return
	}
	if err := form.Flush(); err != nil {
		s.logger.Warn("Flushing focused panel failed", "node_id", form.NodeID(), "error", err)
	}
}

// Validate checks the parameters of every node against its instruction.
// Nodes whose instruction is unknown are reported with CodeUnresolved.
func (s *Session) Validate() binder.FieldErrors {
	var out binder.FieldErrors
	for _, node := range s.graph.Nodes() {
		inst, ok := s.catalogue.Lookup(node.InstructionID)
		if !ok {
			out = append(out, binder.FieldError{
				NodeID:  node.ID,
				Code:    CodeUnresolved,
				Message: fmt.Sprintf("node %s uses unknown instruction %q", node.ID, node.InstructionID),
			})
			continue
		}
		out = append(out, binder.Bind(node, inst, nil).Validate()...)
	}
	return out
}

// Analyze reports connectivity warnings for the open flow: start and end
// nodes, isolated nodes and reachability. It never blocks a run.
func (s *Session) Analyze() flowgraph.Analysis {
	return s.graph.Analyze()
}

// Run validates the flow and submits it. A finished previous run is reset
// first. The returned bool reports whether the orchestrator accepted the
// run; its outcome arrives through the orchestrator observers.
func (s *Session) Run(ctx context.Context) (bool, error) {
	if s.orch == nil {
		return false, errors.WrapInvalid(fmt.Errorf("%w: no engine", errors.ErrNotInitialized), "Session", "Run", "engine check")
	}
	if s.orch.State().Terminal() {
		if err := s.orch.Reset(); err != nil {
			return false, err
		}
	}

	if err := s.catalogue.Load(ctx); err != nil {
		return false, errors.Wrap(err, "Session", "Run", "catalogue load")
	}
	if errs := s.Validate(); len(errs) > 0 {
		s.logger.Info("Run refused by client validation", "flow_id", s.Meta().ID, "errors", len(errs))
		return false, errs
	}
	if analysis := s.Analyze(); !analysis.Runnable() {
		s.logger.Warn("Submitting flow with connectivity warnings", "flow_id", s.Meta().ID, "issues", len(analysis.Issues))
	}
	return s.orch.Submit(ctx, s.Document)
}

// Terminate asks the engine to stop the active run.
func (s *Session) Terminate(ctx context.Context) error {
	if s.orch == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: no engine", errors.ErrNotInitialized), "Session", "Terminate", "engine check")
	}
	return s.orch.Terminate(ctx)
}

// Save stores the open flow. The first save assigns the id; later saves
// update the same flow. An unnamed flow is saved under DefaultFlowName.
func (s *Session) Save(ctx context.Context) (string, error) {
	if s.store == nil {
		return "", errors.WrapInvalid(fmt.Errorf("%w: no store", errors.ErrNotInitialized), "Session", "Save", "store check")
	}
	s.flushFocused()
	s.mu.Lock()
	if strings.TrimSpace(s.meta.Name) == "" {
		s.meta.Name = DefaultFlowName(time.Now())
	}
	s.mu.Unlock()
	doc := s.Document()
	id, err := s.store.Save(ctx, doc)
	if err != nil {
		return "", errors.Wrap(err, "Session", "Save", "store save")
	}

	s.mu.Lock()
	s.meta.ID = id
	s.meta.Version = doc.Version
	s.mu.Unlock()
	s.logger.Info("Flow saved", "flow_id", id, "version", doc.Version, "nodes", len(doc.Nodes))
	return id, nil
}

// Load replaces the open flow with the stored flow id. Repairs made while
// loading are returned and kept for LastLoadReport.
func (s *Session) Load(ctx context.Context, id string) (flowstore.LoadReport, error) {
	if s.store == nil {
		return flowstore.LoadReport{}, errors.WrapInvalid(fmt.Errorf("%w: no store", errors.ErrNotInitialized),
			"Session", "Load", "store check")
	}
	doc, err := s.store.Load(ctx, id)
	if err != nil {
		return flowstore.LoadReport{}, errors.Wrap(err, "Session", "Load", "store load")
	}
	return s.Open(ctx, doc)
}

// Open replaces the open flow with doc. The catalogue is loaded first so
// nodes can be checked against it.
func (s *Session) Open(ctx context.Context, doc *flowstore.FlowDocument) (flowstore.LoadReport, error) {
	if err := s.catalogue.Load(ctx); err != nil {
		return flowstore.LoadReport{}, errors.Wrap(err, "Session", "Open", "catalogue load")
	}
	if flowstore.Migrate(doc) {
		s.logger.Info("Flow migrated", "flow_id", doc.ID)
	}
	loaded, report := flowstore.FromDocument(doc,
		flowstore.WithResolver(s.catalogue),
		flowstore.WithLoadLogger(s.logger))

	s.Blur()
	s.graph.ReplaceWith(loaded)

	s.mu.Lock()
	s.meta = flowstore.Meta{ID: doc.ID, Name: doc.Name, Description: doc.Description, Version: doc.Version}
	s.report = report
	s.mu.Unlock()

	s.logger.Info("Flow opened", "flow_id", doc.ID, "nodes", s.graph.NodeCount(), "edges", s.graph.EdgeCount(),
		"dropped_nodes", len(report.DroppedNodes), "dropped_edges", len(report.DroppedEdges),
		"unresolved", len(report.Unresolved))
	return report, nil
}

// New discards the open flow and starts an empty one. A finished run is
// reset; a run in flight is left alone.
func (s *Session) New() {
	s.Blur()
	s.graph.Clear()
	s.mu.Lock()
	s.meta = flowstore.Meta{}
	s.report = flowstore.LoadReport{}
	s.mu.Unlock()
	if s.orch != nil && s.orch.State().Terminal() {
		_ = s.orch.Reset()
	}
}

// Close detaches the canvas and stops run polling.
func (s *Session) Close() {
	if s.projection != nil {
		s.projection.Detach()
	}
	if s.orch != nil {
		s.orch.Close()
	}
}
