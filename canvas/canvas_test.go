package canvas_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowcanvas/canvas"
	"github.com/c360/flowcanvas/catalogue"
	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/flowgraph"
	"github.com/c360/flowcanvas/port"
	"github.com/c360/flowcanvas/testutil"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
}

type fixture struct {
	graph   *flowgraph.Graph
	surface *testutil.FakeSurface
	proj    *canvas.Projection
	events  *canvas.Events
	cat     *catalogue.Catalogue
}

func newFixture(t *testing.T, opts ...canvas.EventsOption) *fixture {
	t.Helper()
	surface := testutil.NewFakeSurface()
	g := flowgraph.New(flowgraph.WithIDGenerator(seqIDs()), flowgraph.WithSizeFunc(canvas.SizeFunc(surface)))
	cat, err := catalogue.New(testutil.CatalogueSource())
	require.NoError(t, err)

	proj := canvas.NewProjection(surface)
	proj.Rebuild(g)
	t.Cleanup(proj.Detach)

	return &fixture{
		graph:   g,
		surface: surface,
		proj:    proj,
		events:  canvas.NewEvents(g, cat, opts...),
		cat:     cat,
	}
}

func TestProjection_MirrorsMutations(t *testing.T) {
	f := newFixture(t)

	a := f.graph.AddNode("read_excel", port.Point{X: 0, Y: 0}, nil)
	b := f.graph.AddNode("export_csv", port.Point{X: 400, Y: 0}, nil)
	e, err := f.graph.AddEdge(flowgraph.EdgeSpec{Source: a.ID, Target: b.ID})
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID, b.ID}, f.surface.NodeIDs())
	drawn, ok := f.surface.Edge(e.ID)
	require.True(t, ok)
	assert.Equal(t, port.Output, drawn.SourcePort)
	assert.Equal(t, port.Input, drawn.TargetPort)

	require.NoError(t, f.graph.SetDescription(a.ID, "reads the input"))
	view, _ := f.surface.Node(a.ID)
	assert.Equal(t, "reads the input", view.Description)

	f.graph.RemoveNode(a.ID)
	assert.Equal(t, []string{b.ID}, f.surface.NodeIDs())
	assert.Empty(t, f.surface.EdgeIDs())
	assert.False(t, f.proj.HasEdge(e.ID))
}

func TestProjection_DragReroutesEdges(t *testing.T) {
	f := newFixture(t)
	a := f.graph.AddNode("read_excel", port.Point{X: 0, Y: 0}, nil)
	b := f.graph.AddNode("export_csv", port.Point{X: 400, Y: 0}, nil)
	e, err := f.graph.AddEdge(flowgraph.EdgeSpec{Source: a.ID, Target: b.ID})
	require.NoError(t, err)
	f.surface.ClearCalls()

	// Drag b below a: the edge flips to bottom/top.
	require.NoError(t, f.events.HandleMove(canvas.MoveEvent{NodeID: b.ID, Position: port.Point{X: 0, Y: 300}}))

	assert.Equal(t, []testutil.SurfaceCall{
		testutil.SurfaceCall("MoveNode " + b.ID),
		testutil.SurfaceCall("UpdateEdge " + e.ID + " bottom->top"),
	}, f.surface.Calls())

	// A move that keeps the geometry does not touch the edge.
	f.surface.ClearCalls()
	require.NoError(t, f.events.HandleMove(canvas.MoveEvent{NodeID: b.ID, Position: port.Point{X: 10, Y: 320}, Final: true}))
	assert.Equal(t, []testutil.SurfaceCall{testutil.SurfaceCall("MoveNode " + b.ID)}, f.surface.Calls())
}

func TestProjection_RebuildOnLoadAndClear(t *testing.T) {
	f := newFixture(t)
	f.graph.AddNode("read_excel", port.Point{}, nil)

	other := flowgraph.New()
	x, err := other.InsertNode(flowgraph.Node{ID: "x", InstructionID: "read_excel"})
	require.NoError(t, err)
	y, err := other.InsertNode(flowgraph.Node{ID: "y", InstructionID: "export_csv", Position: port.Point{X: 300}})
	require.NoError(t, err)
	_, err = other.AddEdge(flowgraph.EdgeSpec{Source: x.ID, Target: y.ID})
	require.NoError(t, err)

	f.surface.ClearCalls()
	f.graph.ReplaceWith(other)

	calls := f.surface.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, testutil.SurfaceCall("Reset"), calls[0], "handles are rebuilt from scratch")
	assert.Equal(t, []string{"x", "y"}, f.surface.NodeIDs())
	nodes, edges := f.proj.Counts()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)

	f.graph.Clear()
	assert.Empty(t, f.surface.NodeIDs())
	assert.Empty(t, f.surface.EdgeIDs())
}

func TestProjection_RebuildSwitchesGraph(t *testing.T) {
	f := newFixture(t)
	f.graph.AddNode("read_excel", port.Point{}, nil)

	next := flowgraph.New()
	next.AddNode("export_csv", port.Point{}, nil)
	f.proj.Rebuild(next)
	require.Len(t, f.surface.NodeIDs(), 1)

	// The old graph no longer reaches the surface.
	f.graph.AddNode("filter_rows", port.Point{}, nil)
	assert.Len(t, f.surface.NodeIDs(), 1)
}

func TestEvents_Connect(t *testing.T) {
	tests := []struct {
		name     string
		event    func(a, b string) canvas.ConnectEvent
		wantErr  error
		wantSrc  port.Port
		wantTgt  port.Port
		wantEdge bool
	}{
		{
			name:     "ports routed when omitted",
			event:    func(a, b string) canvas.ConnectEvent { return canvas.ConnectEvent{Source: a, Target: b} },
			wantSrc:  port.Output,
			wantTgt:  port.Input,
			wantEdge: true,
		},
		{
			name: "explicit ports kept",
			event: func(a, b string) canvas.ConnectEvent {
				return canvas.ConnectEvent{Source: a, SourcePort: port.Top, Target: b, TargetPort: port.Bottom, Label: "yes"}
			},
			wantSrc:  port.Top,
			wantTgt:  port.Bottom,
			wantEdge: true,
		},
		{
			name:    "self loop refused",
			event:   func(a, _ string) canvas.ConnectEvent { return canvas.ConnectEvent{Source: a, Target: a} },
			wantErr: errors.ErrSelfLoop,
		},
		{
			name:    "unknown target refused",
			event:   func(a, _ string) canvas.ConnectEvent { return canvas.ConnectEvent{Source: a, Target: "ghost"} },
			wantErr: errors.ErrNodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.graph.AddNode("read_excel", port.Point{X: 0, Y: 0}, nil)
			b := f.graph.AddNode("export_csv", port.Point{X: 400, Y: 0}, nil)

			edge, err := f.events.HandleConnect(tt.event(a.ID, b.ID))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, f.graph.EdgeCount())
				assert.Empty(t, f.surface.EdgeIDs())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSrc, edge.SourcePort)
			assert.Equal(t, tt.wantTgt, edge.TargetPort)
			assert.Equal(t, tt.wantEdge, f.proj.HasEdge(edge.ID))
		})
	}
}

func TestEvents_ConnectUsesRenderedSize(t *testing.T) {
	f := newFixture(t)
	a := f.graph.AddNode("read_excel", port.Point{X: 0, Y: 0}, nil)
	b := f.graph.AddNode("export_csv", port.Point{X: 100, Y: 130}, nil)

	// Default sizes put b's center further down than right (dy 130 > dx 100).
	// A tall rendering of a moves its center level with b and flips the choice.
	f.surface.Sizes[a.ID] = [2]float64{120, 300}
	edge, err := f.events.HandleConnect(canvas.ConnectEvent{Source: a.ID, Target: b.ID})
	require.NoError(t, err)
	assert.Equal(t, port.Output, edge.SourcePort)
	assert.Equal(t, port.Input, edge.TargetPort)
}

func TestEvents_Drop(t *testing.T) {
	f := newFixture(t)

	node, err := f.events.HandleDrop(context.Background(), canvas.DropEvent{
		InstructionID: testutil.InstFilterRows,
		Position:      port.Point{X: 50, Y: 60},
	})
	require.NoError(t, err)
	assert.Equal(t, "Filter Rows", node.Name)
	assert.Equal(t, "keep", node.Params["mode"])
	assert.NotContains(t, node.Params, "column", "only declared defaults are copied")

	view, ok := f.surface.Node(node.ID)
	require.True(t, ok)
	assert.Equal(t, "Filter Rows", view.Label)
	assert.Equal(t, port.Point{X: 50, Y: 60}, view.Position)

	_, err = f.events.HandleDrop(context.Background(), canvas.DropEvent{InstructionID: "nope"})
	assert.ErrorIs(t, err, errors.ErrNoInstruction)
	assert.Equal(t, 1, f.graph.NodeCount())
}

func TestEvents_DropInactiveInstruction(t *testing.T) {
	inactive := false
	cat, err := catalogue.New(catalogue.StaticSource{{ID: "old", Name: "Old", Active: &inactive}})
	require.NoError(t, err)
	g := flowgraph.New()
	events := canvas.NewEvents(g, cat)

	_, err = events.HandleDrop(context.Background(), canvas.DropEvent{InstructionID: "old"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, g.NodeCount())

	_, err = canvas.NewEvents(g, nil).HandleDrop(context.Background(), canvas.DropEvent{InstructionID: "old"})
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
}

func TestEvents_DeleteAndClick(t *testing.T) {
	var selected []canvas.ClickEvent
	f := newFixture(t, canvas.OnSelect(func(ev canvas.ClickEvent) { selected = append(selected, ev) }))

	a := f.graph.AddNode("read_excel", port.Point{}, nil)
	b := f.graph.AddNode("export_csv", port.Point{X: 300}, nil)
	c := f.graph.AddNode("filter_rows", port.Point{X: 600}, nil)
	e1, err := f.graph.AddEdge(flowgraph.EdgeSpec{Source: a.ID, Target: b.ID})
	require.NoError(t, err)
	e2, err := f.graph.AddEdge(flowgraph.EdgeSpec{Source: b.ID, Target: c.ID})
	require.NoError(t, err)

	f.events.HandleClick(canvas.ClickEvent{NodeID: b.ID})
	f.events.HandleClick(canvas.ClickEvent{})
	assert.Equal(t, []canvas.ClickEvent{{NodeID: b.ID}, {}}, selected)

	f.events.HandleDelete(canvas.DeleteEvent{EdgeID: e1.ID})
	assert.Equal(t, []string{e2.ID}, f.surface.EdgeIDs())

	f.events.HandleDelete(canvas.DeleteEvent{NodeID: c.ID})
	assert.Empty(t, f.surface.EdgeIDs())
	assert.Equal(t, 2, f.graph.NodeCount())

	// Unknown ids are ignored.
	f.events.HandleDelete(canvas.DeleteEvent{NodeID: "ghost", EdgeID: "ghost"})
	assert.Equal(t, 2, f.graph.NodeCount())
}

func TestEvents_PreviewPorts(t *testing.T) {
	f := newFixture(t)
	a := f.graph.AddNode("read_excel", port.Point{X: 0, Y: 0}, nil)

	sp, tp, ok := f.events.PreviewPorts(a.ID, port.Point{X: 60, Y: 400})
	require.True(t, ok)
	assert.Equal(t, port.Bottom, sp)
	assert.Equal(t, port.Top, tp)

	sp, tp, ok = f.events.PreviewPorts(a.ID, port.Point{X: -500, Y: 20})
	require.True(t, ok)
	assert.Equal(t, port.Input, sp)
	assert.Equal(t, port.Output, tp)

	_, _, ok = f.events.PreviewPorts("ghost", port.Point{})
	assert.False(t, ok)
}

func TestNodeViewOf(t *testing.T) {
	v := canvas.NodeViewOf(flowgraph.Node{ID: "n", InstructionID: "gone", Unresolved: true})
	assert.Equal(t, "gone", v.Label)
	assert.True(t, v.Unresolved)
}
