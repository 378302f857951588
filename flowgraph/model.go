package flowgraph

import (
	"github.com/c360/flowcanvas/port"
)

// Node is one placed instance of an instruction.
type Node struct {
	ID            string         `json:"id"`
	InstructionID string         `json:"instructionId"`
	Name          string         `json:"name,omitempty"`
	Position      port.Point     `json:"position"`
	Params        map[string]any `json:"params"`
	Description   string         `json:"description,omitempty"`

	// Unresolved is set when InstructionID has no catalogue entry. The node
	// is kept so the flow still loads and can be repaired.
	Unresolved bool `json:"unresolved,omitempty"`
}

// Edge is a directed connection from a port on one node to a port on another.
type Edge struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	SourcePort port.Port `json:"sourcePort"`
	Target     string    `json:"target"`
	TargetPort port.Port `json:"targetPort"`
	Label      string    `json:"label"`
}

// Touches reports whether the edge has nodeID at either end.
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// EdgeSpec describes an edge to add. Empty ports are chosen by port.Route.
type EdgeSpec struct {
	Source     string
	SourcePort port.Port
	Target     string
	TargetPort port.Port
	Label      string
}

// ChangeKind identifies a graph mutation.
type ChangeKind string

// Graph change kinds
const (
	NodeAdded    ChangeKind = "node_added"
	NodeRemoved  ChangeKind = "node_removed"
	NodeMoved    ChangeKind = "node_moved"
	NodeUpdated  ChangeKind = "node_updated"
	EdgeAdded    ChangeKind = "edge_added"
	EdgeRemoved  ChangeKind = "edge_removed"
	EdgeUpdated  ChangeKind = "edge_updated"
	GraphCleared ChangeKind = "graph_cleared"
	GraphLoaded  ChangeKind = "graph_loaded"
)

// Change is delivered to subscribers after a mutation completes. Node and
// Edge are copies; holding them never aliases graph state.
type Change struct {
	Kind ChangeKind
	Node *Node
	Edge *Edge
}

func (n *Node) clone() *Node {
	c := *n
	c.Params = CloneParams(n.Params)
	return &c
}

func (e *Edge) clone() *Edge {
	c := *e
	return &c
}

// CloneParams returns a deep copy of a parameter map. Nested maps and slices
// are copied recursively; scalars are copied by value.
func CloneParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies JSON-shaped values.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneParams(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []float64:
		return append([]float64(nil), val...)
	case []int:
		return append([]int(nil), val...)
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = CloneParams(item)
		}
		return out
	default:
		return v
	}
}
