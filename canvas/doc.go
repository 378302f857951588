// Package canvas connects the Graph Model to a rendering surface.
//
// The package never draws anything itself. A Surface is whatever renders
// nodes and edges (a browser canvas behind a websocket, a test double); the
// Projection mirrors graph changes onto it, and Events turns what the user
// does on the surface back into graph calls.
//
//	graph --Change--> Projection --CreateNode/UpdateEdge/...--> Surface
//	Surface --MoveEvent/ConnectEvent/DropEvent/...--> Events --> graph
//
// Display handles are keyed by node and edge id and are never assumed to
// survive a full teardown: after a load or clear the Projection resets the
// surface and redraws every node, then every edge.
//
// Moving a node re-routes its edges in the graph, so a drag produces a
// NodeMoved change followed by an EdgeUpdated change for every edge whose
// ports flipped. The surface only ever sees the result.
package canvas
