// Package flowcanvas is a headless core for visual flow editors: a graph of
// instruction nodes joined by port-to-port edges, the parameter forms those
// instructions declare, and the submission of finished flows to a remote
// execution engine.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│   cmd/flowcanvas, gateway/statusws  │  CLI, run status over WebSocket
//	└─────────────────────────────────────┘
//	           ↓ drive
//	┌─────────────────────────────────────┐
//	│              editor                 │  One open flow: load, edit,
//	│                                     │  validate, save, run
//	└─────────────────────────────────────┘
//	           ↓ coordinates
//	┌──────────┬──────────┬───────────────┐
//	│ flowgraph│  binder  │    engine     │  Graph model, parameter forms,
//	│   port   │ catalogue│   flowstore   │  run state machine, persistence
//	└──────────┴──────────┴───────────────┘
//	           ↓ talk to
//	┌─────────────────────────────────────┐
//	│ engineclient, natsclient, SQLite    │  Engine HTTP API, JetStream KV
//	└─────────────────────────────────────┘
//
// canvas adapts a flowgraph.Graph to a drawing surface and is the only
// package that knows about screen coordinates beyond storing them.
//
// # Packages
//
//   - flowgraph: nodes, edges and change notifications
//   - port: port sides, edge endpoint resolution and auto-routing
//   - binder: typed parameter fields and validation per instruction
//   - catalogue: cached, categorized instruction definitions
//   - flowstore: the flow document format, its codecs and stores
//   - engine: the execution orchestrator state machine
//   - engineclient: HTTP client for the execution engine
//   - editor: a session tying the above together
//   - config, errors, metric, health, natsclient, pkg/...: ambient support
//
// Run "flowcanvas -h" for the command line.
package flowcanvas
