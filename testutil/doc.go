// Package testutil holds test doubles and fixtures shared by the flowcanvas
// packages.
//
//   - FakeSurface records every call a canvas.Projection makes and keeps
//     the resulting picture, so tests can assert on what would be drawn.
//   - FakeEngine implements flowengine.Engine in memory. Execution is
//     scripted through ExecuteFunc, StatusFunc and TerminateFunc; storage
//     behaves like the real stores (ids assigned on first save, versions
//     bumped on update).
//   - MockNATSClient captures publishes for code that fans out over NATS.
//   - Instructions, CatalogueSource and Document return a small, stable
//     catalogue and flows built from it.
//
// Nothing in this package talks to the network.
package testutil
