package flowstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowgraph"
	"github.com/c360/flowcanvas/port"
)

// SchemaVersion is the canonical document schema written by this package.
const SchemaVersion = 1

// FlowDocument is the persisted and transmitted form of a flow.
type FlowDocument struct {
	ID            string    `json:"id,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	SchemaVersion int       `json:"schemaVersion"`
	Version       int64     `json:"version,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	UpdatedAt     time.Time `json:"updatedAt,omitzero"`
	Nodes         []NodeDoc `json:"nodes"`
	Edges         []EdgeDoc `json:"edges"`
}

// NodeDoc is one node in a FlowDocument.
type NodeDoc struct {
	ID            string         `json:"id"`
	InstructionID string         `json:"instructionId"`
	Name          string         `json:"name,omitempty"`
	X             float64        `json:"x"`
	Y             float64        `json:"y"`
	Params        map[string]any `json:"params"`
	Description   string         `json:"description,omitempty"`
}

// EdgeDoc is one edge in a FlowDocument. Ports are kept as raw wire ids so
// that hand-edited documents with unknown ports still decode.
type EdgeDoc struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	SourcePort string `json:"sourcePort,omitempty"`
	TargetPort string `json:"targetPort,omitempty"`
	Label      string `json:"label"`
}

// Summary is the listing view of a stored flow.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	NodeCount   int       `json:"nodeCount"`
	Version     int64     `json:"version,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Summarize returns the listing view of d.
func (d *FlowDocument) Summarize() Summary {
	return Summary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		NodeCount:   len(d.Nodes),
		Version:     d.Version,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// Clone returns a deep copy of d.
func (d *FlowDocument) Clone() *FlowDocument {
	c := *d
	if d.Nodes != nil {
		c.Nodes = make([]NodeDoc, len(d.Nodes))
		for i, n := range d.Nodes {
			if n.Params != nil {
				n.Params = flowgraph.CloneParams(n.Params)
			}
			c.Nodes[i] = n
		}
	}
	if d.Edges != nil {
		c.Edges = append(make([]EdgeDoc, 0, len(d.Edges)), d.Edges...)
	}
	return &c
}

// Validate checks that d is structurally sound for storage or execution.
// It is stricter than FromDocument, which repairs what it can.
func (d *FlowDocument) Validate() error {
	if d.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("flow name cannot be empty"), "flowstore", "Validate", "validation")
	}

	nodeIDs := make(map[string]bool, len(d.Nodes))
	for i, node := range d.Nodes {
		if node.ID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node at index %d has empty ID", i),
				"flowstore", "Validate", "node ID validation")
		}
		if node.InstructionID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("node '%s' has empty instructionId", node.ID),
				"flowstore", "Validate", "node instruction validation")
		}
		if nodeIDs[node.ID] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: node %s", errors.ErrDuplicateID, node.ID),
				"flowstore", "Validate", "node ID validation")
		}
		nodeIDs[node.ID] = true
	}

	edgeIDs := make(map[string]bool, len(d.Edges))
	for i, edge := range d.Edges {
		if edge.ID == "" {
			return errors.WrapInvalid(
				fmt.Errorf("edge at index %d has empty ID", i),
				"flowstore", "Validate", "edge ID validation")
		}
		if edgeIDs[edge.ID] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: edge %s", errors.ErrDuplicateID, edge.ID),
				"flowstore", "Validate", "edge ID validation")
		}
		edgeIDs[edge.ID] = true

		if edge.Source == edge.Target {
			return errors.WrapInvalid(
				fmt.Errorf("%w: edge %s", errors.ErrSelfLoop, edge.ID),
				"flowstore", "Validate", "edge endpoint validation")
		}
		if !nodeIDs[edge.Source] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: edge '%s' references source %s", errors.ErrNodeNotFound, edge.ID, edge.Source),
				"flowstore", "Validate", "edge source validation")
		}
		if !nodeIDs[edge.Target] {
			return errors.WrapInvalid(
				fmt.Errorf("%w: edge '%s' references target %s", errors.ErrNodeNotFound, edge.ID, edge.Target),
				"flowstore", "Validate", "edge target validation")
		}
		for _, p := range []string{edge.SourcePort, edge.TargetPort} {
			if _, err := port.Parse(p); err != nil {
				return errors.WrapInvalid(
					fmt.Errorf("edge '%s': %w", edge.ID, err),
					"flowstore", "Validate", "edge port validation")
			}
		}
	}
	return nil
}

// Encode marshals d as canonical JSON.
func Encode(d *FlowDocument) ([]byte, error) {
	out := d.Clone()
	if out.SchemaVersion == 0 {
		out.SchemaVersion = SchemaVersion
	}
	out.normalize()
	data, err := json.Marshal(out)
	if err != nil {
		return nil, errors.WrapInvalid(err, "flowstore", "Encode", "marshal document")
	}
	return data, nil
}

// Decode validates data against the document schema, unmarshals it and
// migrates legacy shapes to the canonical schema.
func Decode(data []byte) (*FlowDocument, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	var doc FlowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"flowstore", "Decode", "unmarshal document")
	}
	Migrate(&doc)
	doc.normalize()
	return &doc, nil
}

// normalize replaces nil collections so decoded documents compare equal
// regardless of the source encoding.
func (d *FlowDocument) normalize() {
	if d.Nodes == nil {
		d.Nodes = []NodeDoc{}
	}
	if d.Edges == nil {
		d.Edges = []EdgeDoc{}
	}
	for i := range d.Nodes {
		if d.Nodes[i].Params == nil {
			d.Nodes[i].Params = map[string]any{}
		}
	}
}
