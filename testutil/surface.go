package testutil

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/flowcanvas/canvas"
	"github.com/c360/flowcanvas/port"
)

// SurfaceCall is one recorded call on a FakeSurface, e.g. "CreateNode n1"
// or "UpdateEdge e1 output->input".
type SurfaceCall string

// FakeSurface is a canvas.Surface that remembers what it was asked to draw.
type FakeSurface struct {
	mu    sync.Mutex
	calls []SurfaceCall
	nodes map[string]canvas.NodeView
	edges map[string]canvas.EdgeView

	// Sizes overrides the rendered size reported by NodeBounds, by node id.
	Sizes map[string][2]float64
}

var _ canvas.Surface = (*FakeSurface)(nil)

// NewFakeSurface creates an empty surface.
func NewFakeSurface() *FakeSurface {
	return &FakeSurface{
		nodes: make(map[string]canvas.NodeView),
		edges: make(map[string]canvas.EdgeView),
		Sizes: make(map[string][2]float64),
	}
}

func (s *FakeSurface) record(format string, args ...any) {
	s.calls = append(s.calls, SurfaceCall(fmt.Sprintf(format, args...)))
}

// CreateNode implements canvas.Surface.
func (s *FakeSurface) CreateNode(v canvas.NodeView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateNode %s", v.ID)
	s.nodes[v.ID] = v
}

// UpdateNode implements canvas.Surface.
func (s *FakeSurface) UpdateNode(v canvas.NodeView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateNode %s", v.ID)
	s.nodes[v.ID] = v
}

// MoveNode implements canvas.Surface.
func (s *FakeSurface) MoveNode(id string, pos port.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("MoveNode %s", id)
	if v, ok := s.nodes[id]; ok {
		v.Position = pos
		s.nodes[id] = v
	}
}

// RemoveNode implements canvas.Surface.
func (s *FakeSurface) RemoveNode(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("RemoveNode %s", id)
	delete(s.nodes, id)
}

// CreateEdge implements canvas.Surface.
func (s *FakeSurface) CreateEdge(v canvas.EdgeView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateEdge %s %s->%s", v.ID, v.SourcePort, v.TargetPort)
	s.edges[v.ID] = v
}

// UpdateEdge implements canvas.Surface.
func (s *FakeSurface) UpdateEdge(v canvas.EdgeView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateEdge %s %s->%s", v.ID, v.SourcePort, v.TargetPort)
	s.edges[v.ID] = v
}

// RemoveEdge implements canvas.Surface.
func (s *FakeSurface) RemoveEdge(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("RemoveEdge %s", id)
	delete(s.edges, id)
}

// NodeBounds implements canvas.Surface. The size is taken from Sizes when
// present, otherwise the default node size.
func (s *FakeSurface) NodeBounds(id string) (port.Rect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.nodes[id]
	if !ok {
		return port.Rect{}, false
	}
	r := port.NodeRect(v.Position)
	if size, ok := s.Sizes[id]; ok {
		r.Width, r.Height = size[0], size[1]
	}
	return r, true
}

// Reset implements canvas.Surface.
func (s *FakeSurface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Reset")
	s.nodes = make(map[string]canvas.NodeView)
	s.edges = make(map[string]canvas.EdgeView)
}

// Calls returns the recorded calls in order.
func (s *FakeSurface) Calls() []SurfaceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SurfaceCall(nil), s.calls...)
}

// ClearCalls forgets recorded calls but keeps the picture.
func (s *FakeSurface) ClearCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Node returns the drawn view of a node.
func (s *FakeSurface) Node(id string) (canvas.NodeView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.nodes[id]
	return v, ok
}

// Edge returns the drawn view of an edge.
func (s *FakeSurface) Edge(id string) (canvas.EdgeView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.edges[id]
	return v, ok
}

// NodeIDs returns the drawn node ids, sorted.
func (s *FakeSurface) NodeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EdgeIDs returns the drawn edge ids, sorted.
func (s *FakeSurface) EdgeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.edges))
	for id := range s.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
