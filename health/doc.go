// Package health checks the dependencies flowcanvas talks to: the remote
// engine, the flow store, the instruction catalogue and NATS.
//
// A Checker holds named probes and runs them concurrently, each under its
// own timeout:
//
//	checker := health.NewChecker("flowcanvas", 3*time.Second)
//	checker.Add("store", func(ctx context.Context) error {
//		_, err := store.List(ctx)
//		return err
//	}, true)
//
//	status := checker.Check(ctx)
//	if status.IsUnhealthy() {
//		...
//	}
//
// Aggregation: any unhealthy sub-status makes the result unhealthy; else
// any degraded one makes it degraded. Probe errors are sanitized before
// they reach a Status, so URLs, paths, addresses and credentials are not
// served to clients.
//
// Checker implements gateway.HTTPHandler and serves GET {prefix}/health.
package health
