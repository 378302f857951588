package flowgraph

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/port"
)

// SizeFunc reports the rendered size of a node, when known.
type SizeFunc func(nodeID string) (width, height float64, ok bool)

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used for ignored operations and dropped input.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(gen func() string) Option {
	return func(g *Graph) {
		if gen != nil {
			g.newID = gen
		}
	}
}

// WithSizeFunc supplies rendered node sizes for port routing.
func WithSizeFunc(fn SizeFunc) Option {
	return func(g *Graph) {
		g.size = fn
	}
}

// Graph is the single source of truth for nodes and edges of one flow.
type Graph struct {
	mu        sync.Mutex
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string

	// notifyMu serialises writers and delivery so subscribers see changes in
	// issuance order. Always taken before mu.
	notifyMu sync.Mutex
	subsMu   sync.RWMutex
	subs     map[int]func(Change)
	nextSub  int

	newID  func() string
	size   SizeFunc
	logger *slog.Logger
}

// New creates an empty Graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:  make(map[string]*Node),
		edges:  make(map[string]*Edge),
		subs:   make(map[int]func(Change)),
		newID:  func() string { return uuid.New().String() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (g *Graph) Subscribe(fn func(Change)) func() {
	g.subsMu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.subsMu.Unlock()

	return func() {
		g.subsMu.Lock()
		delete(g.subs, id)
		g.subsMu.Unlock()
	}
}

// lockWrite takes notifyMu before mu. Every mutator locks in this order,
// so a subscriber may read the graph while a change is delivered.
func (g *Graph) lockWrite() {
	g.notifyMu.Lock()
	g.mu.Lock()
}

func (g *Graph) unlockWrite() {
	g.mu.Unlock()
	g.notifyMu.Unlock()
}

// commit releases mu, delivers changes and then releases notifyMu.
// Callers hold both via lockWrite.
func (g *Graph) commit(changes ...Change) {
	g.mu.Unlock()
	defer g.notifyMu.Unlock()

	if len(changes) == 0 {
		return
	}

	g.subsMu.RLock()
	subs := make([]func(Change), 0, len(g.subs))
	for i := 0; i < g.nextSub; i++ {
		if fn, ok := g.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	g.subsMu.RUnlock()

	for _, c := range changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

// AddNode places a new node for instructionID at pos. initialParams are
// deep-copied, so the caller keeps no reference into the node.
func (g *Graph) AddNode(instructionID string, pos port.Point, initialParams map[string]any) Node {
	g.lockWrite()
	n := &Node{
		ID:            g.newID(),
		InstructionID: instructionID,
		Position:      pos,
		Params:        CloneParams(initialParams),
	}
	g.insertNodeLocked(n)
	out := *n.clone()
	g.commit(Change{Kind: NodeAdded, Node: n.clone()})
	return out
}

// InsertNode adds a fully described node. An empty ID is generated; an ID
// already in the graph is rejected.
func (g *Graph) InsertNode(node Node) (Node, error) {
	g.lockWrite()
	if node.ID == "" {
		node.ID = g.newID()
	}
	if _, exists := g.nodes[node.ID]; exists {
		g.unlockWrite()
		return Node{}, errors.WrapInvalid(
			fmt.Errorf("%w: node %s", errors.ErrDuplicateID, node.ID), "Graph", "InsertNode", "node insert")
	}
	n := node.clone()
	g.insertNodeLocked(n)
	out := *n.clone()
	g.commit(Change{Kind: NodeAdded, Node: n.clone()})
	return out, nil
}

func (g *Graph) insertNodeLocked(n *Node) {
	g.nodes[n.ID] = n
	g.nodeOrder = append(g.nodeOrder, n.ID)
}

// RemoveNode deletes a node and every edge touching it. An absent id is
// logged and ignored, since UI events can race a delete.
func (g *Graph) RemoveNode(id string) {
	g.lockWrite()
	n, ok := g.nodes[id]
	if !ok {
		g.logger.Debug("remove of unknown node ignored", "node_id", id)
		g.commit()
		return
	}

	var changes []Change
	kept := g.edgeOrder[:0]
	for _, eid := range g.edgeOrder {
		e := g.edges[eid]
		if e.Touches(id) {
			delete(g.edges, eid)
			changes = append(changes, Change{Kind: EdgeRemoved, Edge: e.clone()})
			continue
		}
		kept = append(kept, eid)
	}
	g.edgeOrder = kept

	delete(g.nodes, id)
	g.nodeOrder = removeID(g.nodeOrder, id)
	changes = append(changes, Change{Kind: NodeRemoved, Node: n.clone()})
	g.commit(changes...)
}

// AddEdge connects two nodes. Self-loops, unknown endpoints and invalid
// ports are rejected without mutating the graph. Ports left empty are
// routed from the node bounding boxes.
func (g *Graph) AddEdge(spec EdgeSpec) (Edge, error) {
	return g.InsertEdge(Edge{
		Source:     spec.Source,
		SourcePort: spec.SourcePort,
		Target:     spec.Target,
		TargetPort: spec.TargetPort,
		Label:      spec.Label,
	})
}

// InsertEdge adds an edge with a caller-chosen id (generated when empty).
func (g *Graph) InsertEdge(edge Edge) (Edge, error) {
	g.lockWrite()
	e, err := g.prepareEdgeLocked(edge)
	if err != nil {
		g.unlockWrite()
		return Edge{}, err
	}
	g.edges[e.ID] = e
	g.edgeOrder = append(g.edgeOrder, e.ID)
	out := *e
	g.commit(Change{Kind: EdgeAdded, Edge: e.clone()})
	return out, nil
}

func (g *Graph) prepareEdgeLocked(edge Edge) (*Edge, error) {
	if edge.Source == edge.Target {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrSelfLoop, edge.Source), "Graph", "AddEdge", "edge insert")
	}
	src, ok := g.nodes[edge.Source]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: source %s", errors.ErrNodeNotFound, edge.Source), "Graph", "AddEdge", "edge insert")
	}
	tgt, ok := g.nodes[edge.Target]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: target %s", errors.ErrNodeNotFound, edge.Target), "Graph", "AddEdge", "edge insert")
	}
	for _, p := range []port.Port{edge.SourcePort, edge.TargetPort} {
		if p != "" && !p.Valid() {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrInvalidPort, p), "Graph", "AddEdge", "edge insert")
		}
	}
	if edge.ID == "" {
		edge.ID = g.newID()
	} else if _, exists := g.edges[edge.ID]; exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: edge %s", errors.ErrDuplicateID, edge.ID), "Graph", "AddEdge", "edge insert")
	}

	if edge.SourcePort == "" || edge.TargetPort == "" {
		sp, tp := port.Route(g.boundsLocked(src), g.boundsLocked(tgt))
		if edge.SourcePort == "" {
			edge.SourcePort = sp
		}
		if edge.TargetPort == "" {
			edge.TargetPort = tp
		}
	}
	return &edge, nil
}

// RemoveEdge deletes an edge. An absent id is logged and ignored.
func (g *Graph) RemoveEdge(id string) {
	g.lockWrite()
	e, ok := g.edges[id]
	if !ok {
		g.logger.Debug("remove of unknown edge ignored", "edge_id", id)
		g.commit()
		return
	}
	delete(g.edges, id)
	g.edgeOrder = removeID(g.edgeOrder, id)
	g.commit(Change{Kind: EdgeRemoved, Edge: e.clone()})
}

// Clear drops every node and edge.
func (g *Graph) Clear() {
	g.lockWrite()
	g.nodes = make(map[string]*Node)
	g.edges = make(map[string]*Edge)
	g.nodeOrder = nil
	g.edgeOrder = nil
	g.commit(Change{Kind: GraphCleared})
}

// ReplaceWith atomically swaps in the content of other. Subscribers of g
// are kept and receive a single GraphLoaded change. other must not be used
// afterwards.
func (g *Graph) ReplaceWith(other *Graph) {
	other.mu.Lock()
	nodes, nodeOrder := other.nodes, other.nodeOrder
	edges, edgeOrder := other.edges, other.edgeOrder
	other.nodes, other.edges = make(map[string]*Node), make(map[string]*Edge)
	other.nodeOrder, other.edgeOrder = nil, nil
	other.mu.Unlock()

	g.lockWrite()
	g.nodes, g.nodeOrder = nodes, nodeOrder
	g.edges, g.edgeOrder = edges, edgeOrder
	g.commit(Change{Kind: GraphLoaded})
}

// MoveNode updates a node position and re-routes every edge touching it.
func (g *Graph) MoveNode(id string, pos port.Point) error {
	g.lockWrite()
	n, ok := g.nodes[id]
	if !ok {
		g.unlockWrite()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrNodeNotFound, id), "Graph", "MoveNode", "node move")
	}
	n.Position = pos

	changes := []Change{{Kind: NodeMoved, Node: n.clone()}}
	for _, eid := range g.edgeOrder {
		e := g.edges[eid]
		if !e.Touches(id) {
			continue
		}
		sp, tp := port.Route(g.boundsLocked(g.nodes[e.Source]), g.boundsLocked(g.nodes[e.Target]))
		if sp == e.SourcePort && tp == e.TargetPort {
			continue
		}
		e.SourcePort, e.TargetPort = sp, tp
		changes = append(changes, Change{Kind: EdgeUpdated, Edge: e.clone()})
	}
	g.commit(changes...)
	return nil
}

// SetParam writes a single parameter value on a node. The value is
// deep-copied.
func (g *Graph) SetParam(nodeID, name string, value any) error {
	return g.updateNode(nodeID, "SetParam", func(n *Node) {
		if n.Params == nil {
			n.Params = map[string]any{}
		}
		n.Params[name] = CloneValue(value)
	})
}

// ReplaceParams overwrites the whole parameter map of a node.
func (g *Graph) ReplaceParams(nodeID string, params map[string]any) error {
	return g.updateNode(nodeID, "ReplaceParams", func(n *Node) {
		n.Params = CloneParams(params)
	})
}

// SetDescription sets the free text shown under a node.
func (g *Graph) SetDescription(nodeID, description string) error {
	return g.updateNode(nodeID, "SetDescription", func(n *Node) {
		n.Description = description
	})
}

// SetName sets the display label of a node.
func (g *Graph) SetName(nodeID, name string) error {
	return g.updateNode(nodeID, "SetName", func(n *Node) {
		n.Name = name
	})
}

// MarkUnresolved flags whether the node's instruction is missing from the catalogue.
func (g *Graph) MarkUnresolved(nodeID string, unresolved bool) error {
	return g.updateNode(nodeID, "MarkUnresolved", func(n *Node) {
		n.Unresolved = unresolved
	})
}

func (g *Graph) updateNode(nodeID, method string, fn func(*Node)) error {
	g.lockWrite()
	n, ok := g.nodes[nodeID]
	if !ok {
		g.unlockWrite()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrNodeNotFound, nodeID), "Graph", method, "node update")
	}
	fn(n)
	g.commit(Change{Kind: NodeUpdated, Node: n.clone()})
	return nil
}

// SetEdgeLabel sets the free-text label of an edge. An empty label clears it.
func (g *Graph) SetEdgeLabel(edgeID, label string) error {
	g.lockWrite()
	e, ok := g.edges[edgeID]
	if !ok {
		g.unlockWrite()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrEdgeNotFound, edgeID), "Graph", "SetEdgeLabel", "edge update")
	}
	e.Label = label
	g.commit(Change{Kind: EdgeUpdated, Edge: e.clone()})
	return nil
}

// Node returns a copy of the node with id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n.clone(), true
}

// Edge returns a copy of the edge with id.
func (g *Graph) Edge(id string) (Edge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[id]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, *g.nodes[id].clone())
	}
	return out
}

// Edges returns copies of all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, *g.edges[id])
	}
	return out
}

// EdgesOf returns the edges with nodeID at either end.
func (g *Graph) EdgesOf(nodeID string) []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Edge
	for _, id := range g.edgeOrder {
		if e := g.edges[id]; e.Touches(nodeID) {
			out = append(out, *e)
		}
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}

// Bounds returns the routing bounding box of a node.
func (g *Graph) Bounds(nodeID string) (port.Rect, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[nodeID]
	if !ok {
		return port.Rect{}, false
	}
	return g.boundsLocked(n), true
}

func (g *Graph) boundsLocked(n *Node) port.Rect {
	r := port.NodeRect(n.Position)
	if g.size != nil {
		if w, h, ok := g.size(n.ID); ok && w > 0 && h > 0 {
			r.Width, r.Height = w, h
		}
	}
	return r
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
