// Package flowgraph holds the in-memory Graph Model of a flow: nodes placed
// from catalogue instructions, directed edges between their fixed ports, and
// the structural invariants that keep the two consistent.
//
// # Invariants
//
//   - Node and edge ids are unique within a Graph.
//   - An edge never connects a node to itself.
//   - Both edge endpoints exist; removing a node removes every edge touching it.
//   - Edge ports are always one of port.Input, port.Output, port.Top, port.Bottom.
//
// Structural violations are rejected at the mutating call with an error
// classified as invalid, and the graph is left untouched.
//
// # Concurrency
//
// Every mutation runs under the graph mutex, so a call is applied in full or
// not at all. Change notifications are delivered after the mutex is released,
// in the order the mutations were issued. Subscribers may read the graph from
// their callback but must not mutate it synchronously.
//
// # Routing
//
// When an edge is added without explicit ports, or when either endpoint is
// moved, both ports are recomputed with port.Route from the node bounding
// boxes. Bounds default to port.NodeRect at the node position; a SizeFunc
// lets a canvas report real node sizes.
package flowgraph
