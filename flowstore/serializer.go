package flowstore

import (
	"log/slog"

	"github.com/c360/flowcanvas/catalogue"
	"github.com/c360/flowcanvas/flowgraph"
	"github.com/c360/flowcanvas/port"
)

// Meta carries the document fields that do not live in the graph.
type Meta struct {
	ID          string
	Name        string
	Description string
	Version     int64
}

// ToDocument snapshots g. Params are deep-copied, so later edits to the
// graph never reach the returned document.
func ToDocument(g *flowgraph.Graph, meta Meta) *FlowDocument {
	nodes := g.Nodes()
	edges := g.Edges()

	doc := &FlowDocument{
		ID:            meta.ID,
		Name:          meta.Name,
		Description:   meta.Description,
		SchemaVersion: SchemaVersion,
		Version:       meta.Version,
		Nodes:         make([]NodeDoc, 0, len(nodes)),
		Edges:         make([]EdgeDoc, 0, len(edges)),
	}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, NodeDoc{
			ID:            n.ID,
			InstructionID: n.InstructionID,
			Name:          n.Name,
			X:             n.Position.X,
			Y:             n.Position.Y,
			Params:        flowgraph.CloneParams(n.Params),
			Description:   n.Description,
		})
	}
	for _, e := range edges {
		doc.Edges = append(doc.Edges, EdgeDoc{
			ID:         e.ID,
			Source:     e.Source,
			Target:     e.Target,
			SourcePort: e.SourcePort.String(),
			TargetPort: e.TargetPort.String(),
			Label:      e.Label,
		})
	}
	return doc
}

// Resolver reports whether an instruction id exists. *catalogue.Catalogue
// satisfies it.
type Resolver interface {
	Lookup(id string) (catalogue.Instruction, bool)
}

// DroppedEdge records an edge FromDocument could not rebuild.
type DroppedEdge struct {
	EdgeID string `json:"edgeId"`
	Source string `json:"source"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// LoadReport lists everything FromDocument repaired.
type LoadReport struct {
	DroppedNodes []string      `json:"droppedNodes,omitempty"`
	DroppedEdges []DroppedEdge `json:"droppedEdges,omitempty"`
	Unresolved   []string      `json:"unresolved,omitempty"`
}

// Clean reports whether the document loaded without repairs. Unresolved
// nodes are not repairs.
func (r LoadReport) Clean() bool {
	return len(r.DroppedNodes) == 0 && len(r.DroppedEdges) == 0
}

type loadConfig struct {
	logger    *slog.Logger
	resolver  Resolver
	graphOpts []flowgraph.Option
}

// LoadOption configures FromDocument.
type LoadOption func(*loadConfig)

// WithLoadLogger sets the logger used for repair warnings.
func WithLoadLogger(logger *slog.Logger) LoadOption {
	return func(c *loadConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithResolver marks nodes whose instruction the resolver does not know.
// Without a resolver every node is treated as resolved.
func WithResolver(r Resolver) LoadOption {
	return func(c *loadConfig) {
		c.resolver = r
	}
}

// WithGraphOptions passes options to the graph being built.
func WithGraphOptions(opts ...flowgraph.Option) LoadOption {
	return func(c *loadConfig) {
		c.graphOpts = append(c.graphOpts, opts...)
	}
}

// FromDocument rebuilds a graph from doc. Nodes are created first, then
// edges. Nothing here is fatal: duplicate nodes, dangling or self-looping
// edges are dropped with a warning and listed in the report.
func FromDocument(doc *FlowDocument, opts ...LoadOption) (*flowgraph.Graph, LoadReport) {
	cfg := &loadConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	g := flowgraph.New(cfg.graphOpts...)
	var report LoadReport

	for _, nd := range doc.Nodes {
		node := flowgraph.Node{
			ID:            nd.ID,
			InstructionID: nd.InstructionID,
			Name:          nd.Name,
			Position:      port.Point{X: nd.X, Y: nd.Y},
			Params:        flowgraph.CloneParams(nd.Params),
			Description:   nd.Description,
		}
		if cfg.resolver != nil {
			if inst, ok := cfg.resolver.Lookup(nd.InstructionID); ok {
				if node.Name == "" {
					node.Name = inst.Name
				}
			} else {
				node.Unresolved = true
			}
		}
		if _, err := g.InsertNode(node); err != nil {
			cfg.logger.Warn("Dropping node", "node_id", nd.ID, "error", err)
			report.DroppedNodes = append(report.DroppedNodes, nd.ID)
			continue
		}
		if node.Unresolved {
			cfg.logger.Warn("Node references unknown instruction",
				"node_id", nd.ID, "instruction_id", nd.InstructionID)
			report.Unresolved = append(report.Unresolved, nd.ID)
		}
	}

	for _, ed := range doc.Edges {
		edge := flowgraph.Edge{
			ID:         ed.ID,
			Source:     ed.Source,
			Target:     ed.Target,
			SourcePort: parsePortLenient(ed.SourcePort, ed.ID, cfg.logger),
			TargetPort: parsePortLenient(ed.TargetPort, ed.ID, cfg.logger),
			Label:      ed.Label,
		}
		if _, err := g.InsertEdge(edge); err != nil {
			cfg.logger.Warn("Dropping edge",
				"edge_id", ed.ID, "source", ed.Source, "target", ed.Target, "error", err)
			report.DroppedEdges = append(report.DroppedEdges, DroppedEdge{
				EdgeID: ed.ID,
				Source: ed.Source,
				Target: ed.Target,
				Reason: err.Error(),
			})
		}
	}
	return g, report
}

// parsePortLenient returns "" for unknown ports so the router picks one.
func parsePortLenient(s, edgeID string, logger *slog.Logger) port.Port {
	p, err := port.Parse(s)
	if err != nil {
		logger.Warn("Unknown port rerouted", "edge_id", edgeID, "port", s)
		return ""
	}
	return p
}
