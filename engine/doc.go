// Package flowengine runs flows on the remote execution engine.
//
// The Orchestrator is a small state machine, one active run at a time:
//
//	Idle --Submit--> Submitting --accepted--> Running --success--> Completed
//	                     |                       |
//	                     +--rejected--> Failed <-+--failure
//	Completed|Failed --Reset--> Idle
//
// Submit refuses (no state change) while a run is in flight, before a
// finished run is Reset, or when the document has no nodes. Engine answers
// map onto failure kinds:
//
//   - transport errors: FailureTransport
//   - *ValidationError: FailureServerValidation, issues kept apart from
//     client-side field errors
//   - accepted but unsuccessful: FailureExecution with the engine message
//   - status "terminated": FailureTerminated
//
// When the engine answers Pending, the orchestrator stays Running and polls
// Executor.Status at the configured interval. Terminate only sends the
// request; the state changes when a poll confirms it.
//
// Observers subscribed with Subscribe receive a Snapshot after every
// transition, in order.
package flowengine
