package canvas

import (
	"log/slog"
	"sync"

	"github.com/c360/flowcanvas/flowgraph"
)

// ProjectionOption configures a Projection.
type ProjectionOption func(*Projection)

// WithLogger sets the projection logger.
func WithLogger(logger *slog.Logger) ProjectionOption {
	return func(p *Projection) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Projection mirrors a Graph onto a Surface.
type Projection struct {
	surface Surface
	logger  *slog.Logger

	mu          sync.Mutex
	graph       *flowgraph.Graph
	unsubscribe func()
	nodes       map[string]struct{}
	edges       map[string]struct{}
}

// NewProjection creates a projection drawing on surface. It shows nothing
// until Rebuild attaches a graph.
func NewProjection(surface Surface, opts ...ProjectionOption) *Projection {
	p := &Projection{
		surface: surface,
		logger:  slog.Default(),
		nodes:   make(map[string]struct{}),
		edges:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rebuild attaches g, resets the surface and redraws every node and then
// every edge. Attaching a different graph drops the previous subscription.
func (p *Projection) Rebuild(g *flowgraph.Graph) {
	p.mu.Lock()
	if p.graph != g {
		if p.unsubscribe != nil {
			p.unsubscribe()
		}
		p.graph = g
		p.unsubscribe = g.Subscribe(p.apply)
	}
	p.mu.Unlock()
	p.redraw()
}

// Detach stops mirroring and clears the surface.
func (p *Projection) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	p.graph = nil
	p.resetLocked()
}

// HasNode reports whether the surface currently shows node id.
func (p *Projection) HasNode(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.nodes[id]
	return ok
}

// HasEdge reports whether the surface currently shows edge id.
func (p *Projection) HasEdge(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.edges[id]
	return ok
}

// Counts returns the number of node and edge handles held.
func (p *Projection) Counts() (nodes, edges int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.nodes), len(p.edges)
}

func (p *Projection) resetLocked() {
	p.surface.Reset()
	p.nodes = make(map[string]struct{})
	p.edges = make(map[string]struct{})
}

func (p *Projection) redraw() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	if p.graph == nil {
		return
	}
	nodes := p.graph.Nodes()
	edges := p.graph.Edges()
	for _, n := range nodes {
		p.surface.CreateNode(NodeViewOf(n))
		p.nodes[n.ID] = struct{}{}
	}
	for _, e := range edges {
		p.surface.CreateEdge(EdgeViewOf(e))
		p.edges[e.ID] = struct{}{}
	}
	p.logger.Debug("Canvas rebuilt", "nodes", len(nodes), "edges", len(edges))
}

// apply is the graph subscriber. It runs after the graph lock is released.
func (p *Projection) apply(c flowgraph.Change) {
	switch c.Kind {
	case flowgraph.GraphLoaded, flowgraph.GraphCleared:
		p.redraw()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch c.Kind {
	case flowgraph.NodeAdded:
		p.surface.CreateNode(NodeViewOf(*c.Node))
		p.nodes[c.Node.ID] = struct{}{}
	case flowgraph.NodeUpdated:
		if _, ok := p.nodes[c.Node.ID]; !ok {
			p.logger.Debug("Update for node without handle", "node_id", c.Node.ID)
			return
		}
		p.surface.UpdateNode(NodeViewOf(*c.Node))
	case flowgraph.NodeMoved:
		if _, ok := p.nodes[c.Node.ID]; ok {
			p.surface.MoveNode(c.Node.ID, c.Node.Position)
		}
	case flowgraph.NodeRemoved:
		if _, ok := p.nodes[c.Node.ID]; ok {
			p.surface.RemoveNode(c.Node.ID)
			delete(p.nodes, c.Node.ID)
		}
	case flowgraph.EdgeAdded:
		p.surface.CreateEdge(EdgeViewOf(*c.Edge))
		p.edges[c.Edge.ID] = struct{}{}
	case flowgraph.EdgeUpdated:
		if _, ok := p.edges[c.Edge.ID]; ok {
			p.surface.UpdateEdge(EdgeViewOf(*c.Edge))
		}
	case flowgraph.EdgeRemoved:
		if _, ok := p.edges[c.Edge.ID]; ok {
			p.surface.RemoveEdge(c.Edge.ID)
			delete(p.edges, c.Edge.ID)
		}
	}
}
