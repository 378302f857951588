package canvas

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/flowcanvas/catalogue"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowgraph"
	"github.com/c360/flowcanvas/port"
)

// MoveEvent is a node drag step. Final marks the drop at the end of a drag.
type MoveEvent struct {
	NodeID   string     `json:"nodeId"`
	Position port.Point `json:"position"`
	Final    bool       `json:"final,omitempty"`
}

// ClickEvent selects a node or an edge. Both empty means the blank canvas
// was clicked.
type ClickEvent struct {
	NodeID string `json:"nodeId,omitempty"`
	EdgeID string `json:"edgeId,omitempty"`
}

// ConnectEvent is a connection drawn between two nodes. Ports are empty
// when the user let go over the node body rather than a port.
type ConnectEvent struct {
	Source     string    `json:"source"`
	SourcePort port.Port `json:"sourcePort,omitempty"`
	Target     string    `json:"target"`
	TargetPort port.Port `json:"targetPort,omitempty"`
	Label      string    `json:"label,omitempty"`
}

// DropEvent is an instruction dragged from the palette onto the canvas.
type DropEvent struct {
	InstructionID string     `json:"instructionId"`
	Position      port.Point `json:"position"`
}

// DeleteEvent removes a node or an edge.
type DeleteEvent struct {
	NodeID string `json:"nodeId,omitempty"`
	EdgeID string `json:"edgeId,omitempty"`
}

// Handler receives surface events.
type Handler interface {
	HandleMove(ev MoveEvent) error
	HandleClick(ev ClickEvent)
	HandleConnect(ev ConnectEvent) (flowgraph.Edge, error)
	HandleDrop(ctx context.Context, ev DropEvent) (flowgraph.Node, error)
	HandleDelete(ev DeleteEvent)
}

// Instructions resolves catalogue entries for dropped nodes.
// *catalogue.Catalogue satisfies it.
type Instructions interface {
	Get(ctx context.Context, id string) (catalogue.Instruction, error)
}

// EventsOption configures Events.
type EventsOption func(*Events)

// WithEventsLogger sets the logger.
func WithEventsLogger(logger *slog.Logger) EventsOption {
	return func(e *Events) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// OnSelect registers fn for click events.
func OnSelect(fn func(ClickEvent)) EventsOption {
	return func(e *Events) {
		e.onSelect = fn
	}
}

// Events applies surface events to a graph.
type Events struct {
	graph        *flowgraph.Graph
	instructions Instructions
	onSelect     func(ClickEvent)
	logger       *slog.Logger
}

var _ Handler = (*Events)(nil)

// NewEvents creates a handler for g. instructions may be nil, in which
// case drops are refused.
func NewEvents(g *flowgraph.Graph, instructions Instructions, opts ...EventsOption) *Events {
	e := &Events{
		graph:        g,
		instructions: instructions,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMove moves the node. The graph re-routes every edge touching it.
func (e *Events) HandleMove(ev MoveEvent) error {
	return e.graph.MoveNode(ev.NodeID, ev.Position)
}

// HandleClick forwards the selection.
func (e *Events) HandleClick(ev ClickEvent) {
	if e.onSelect != nil {
		e.onSelect(ev)
	}
}

// HandleConnect adds an edge. Empty ports are routed from the node bounds;
// a port the user picked explicitly is kept.
func (e *Events) HandleConnect(ev ConnectEvent) (flowgraph.Edge, error) {
	edge, err := e.graph.AddEdge(flowgraph.EdgeSpec{
		Source:     ev.Source,
		SourcePort: ev.SourcePort,
		Target:     ev.Target,
		TargetPort: ev.TargetPort,
		Label:      ev.Label,
	})
	if err != nil {
		e.logger.Debug("Connection refused", "source", ev.Source, "target", ev.Target, "error", err)
		return flowgraph.Edge{}, err
	}
	return edge, nil
}

// HandleDrop places a node for the dropped instruction. The node starts
// with the instruction's default parameter values and its display name.
func (e *Events) HandleDrop(ctx context.Context, ev DropEvent) (flowgraph.Node, error) {
	if e.instructions == nil {
		return flowgraph.Node{}, errors.WrapInvalid(errors.ErrNotInitialized, "Events", "HandleDrop", "catalogue check")
	}
	inst, err := e.instructions.Get(ctx, ev.InstructionID)
	if err != nil {
		return flowgraph.Node{}, err
	}
	if !inst.IsActive() {
		return flowgraph.Node{}, errors.WrapInvalid(fmt.Errorf("%w: %s is inactive", errors.ErrNoInstruction, inst.ID),
			"Events", "HandleDrop", "instruction check")
	}
	node, err := e.graph.InsertNode(flowgraph.Node{
		InstructionID: inst.ID,
		Name:          inst.Name,
		Position:      ev.Position,
		Params:        inst.Defaults(),
	})
	if err != nil {
		return flowgraph.Node{}, err
	}
	e.logger.Debug("Instruction dropped", "node_id", node.ID, "instruction_id", inst.ID)
	return node, nil
}

// HandleDelete removes the node (with its edges) or the edge. Unknown ids
// are ignored by the graph.
func (e *Events) HandleDelete(ev DeleteEvent) {
	if ev.NodeID != "" {
		e.graph.RemoveNode(ev.NodeID)
	}
	if ev.EdgeID != "" {
		e.graph.RemoveEdge(ev.EdgeID)
	}
}

// PreviewPorts returns the ports a connection from sourceID would use if
// released at cursor. It is used while the user is still dragging.
func (e *Events) PreviewPorts(sourceID string, cursor port.Point) (port.Port, port.Port, bool) {
	r, ok := e.graph.Bounds(sourceID)
	if !ok {
		return "", "", false
	}
	sp, tp := port.RouteCursor(r, cursor)
	return sp, tp, true
}
