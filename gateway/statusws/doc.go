// Package statusws streams run status to browsers over WebSocket.
//
// A Hub subscribes to an orchestrator and sends every snapshot to every
// connected client as a JSON Message:
//
//	{"type":"run_update","id":"run-3","timestamp":1760000000000,
//	 "payload":{"state":"running","run_id":1,"flow_id":"f-1"}}
//
// Clients joining mid-run receive the latest snapshot first. Each client has
// a bounded queue; one that falls behind is disconnected instead of slowing
// the orchestrator down.
//
// With WithPublisher the same messages are published to NATS on
// "flowcanvas.run.<flow id>", so other processes can follow runs without a
// WebSocket.
//
// Usage:
//
//	hub, err := statusws.New(statusws.WithPublisher(natsClient))
//	unsubscribe := orchestrator.Subscribe(hub)
//	mux.Handle("/ws/run", hub)
package statusws
