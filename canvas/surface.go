package canvas

import (
	"github.com/c360/flowcanvas/flowgraph"
	"github.com/c360/flowcanvas/port"
)

// NodeView is what a surface needs to draw a node.
type NodeView struct {
	ID            string     `json:"id"`
	InstructionID string     `json:"instructionId"`
	Label         string     `json:"label"`
	Description   string     `json:"description,omitempty"`
	Position      port.Point `json:"position"`
	Unresolved    bool       `json:"unresolved,omitempty"`
}

// EdgeView is what a surface needs to draw an edge.
type EdgeView struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	SourcePort port.Port `json:"sourcePort"`
	Target     string    `json:"target"`
	TargetPort port.Port `json:"targetPort"`
	Label      string    `json:"label,omitempty"`
}

// Surface is the rendering side of the canvas. Implementations draw; they
// must not call back into the graph from these methods.
type Surface interface {
	CreateNode(v NodeView)
	UpdateNode(v NodeView)
	MoveNode(id string, pos port.Point)
	RemoveNode(id string)

	CreateEdge(v EdgeView)
	UpdateEdge(v EdgeView)
	RemoveEdge(id string)

	// NodeBounds reports the rendered bounding box of a node.
	NodeBounds(id string) (port.Rect, bool)

	// Reset drops every node and edge from the surface.
	Reset()
}

// NodeViewOf builds the view of n. Nodes without a display name show
// their instruction id.
func NodeViewOf(n flowgraph.Node) NodeView {
	label := n.Name
	if label == "" {
		label = n.InstructionID
	}
	return NodeView{
		ID:            n.ID,
		InstructionID: n.InstructionID,
		Label:         label,
		Description:   n.Description,
		Position:      n.Position,
		Unresolved:    n.Unresolved,
	}
}

// EdgeViewOf builds the view of e.
func EdgeViewOf(e flowgraph.Edge) EdgeView {
	return EdgeView{
		ID:         e.ID,
		Source:     e.Source,
		SourcePort: e.SourcePort,
		Target:     e.Target,
		TargetPort: e.TargetPort,
		Label:      e.Label,
	}
}

// SizeFunc lets the graph route with the sizes the surface actually
// renders. Pass it to flowgraph.WithSizeFunc.
func SizeFunc(s Surface) flowgraph.SizeFunc {
	return func(nodeID string) (float64, float64, bool) {
		r, ok := s.NodeBounds(nodeID)
		if !ok {
			return 0, 0, false
		}
		return r.Width, r.Height, true
	}
}
