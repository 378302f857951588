// Package errors provides the error classification used across flowcanvas.
//
// Every error belongs to one of three classes:
//
//   - Transient: network timeouts, unavailable storage, rate limiting (retry)
//   - Invalid: rejected input such as a self-loop edge or a bad document (do not retry)
//   - Fatal: broken configuration or corrupted data (stop)
//
// Classification works through errors.Is and errors.As, so sentinel errors keep
// their meaning after wrapping:
//
//	if g.Node(spec.Source) == nil {
//	    return errors.WrapInvalid(errors.ErrNodeNotFound, "Graph", "AddEdge", "source lookup")
//	}
//
// The wrapped message follows "component.method: action failed: cause".
//
// Structural graph errors (self loop, missing endpoint, bad port, duplicate id)
// are reported by IsStructural. They are raised by the graph itself at the
// mutating call and never reach the execution engine.
//
// Bare sentinels are classified too, as are network timeouts. Anything else
// is unclassified: IsTransient, IsInvalid and IsFatal all report false.
package errors
