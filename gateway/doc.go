// Package gateway holds the contract shared by the HTTP-facing parts of
// flowcanvas.
//
// Gateways push editor state to external clients. They are one-way: the
// editor session stays the only writer, and a gateway never feeds commands
// back into it.
//
// A gateway implements HTTPHandler and mounts its routes under a prefix:
//
//	hub, err := statusws.New(statusws.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	mux := gateway.NewMux("/ws", hub) // serves /ws/run
//
// Implementations live in subpackages:
//
//	statusws  run status over WebSocket, optionally mirrored to NATS
package gateway
