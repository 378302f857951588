// Package engineclient talks to the remote execution engine over HTTP.
//
// Client implements flowengine.Engine (flow storage plus execution), and
// CatalogueSource exposes the instruction catalogue, so one value can back
// an editor session end to end:
//
//	client, err := engineclient.New("http://localhost:8000",
//	    engineclient.WithLogger(logger),
//	    engineclient.WithRateLimit(10, 5),
//	)
//	cat, err := catalogue.New(client.CatalogueSource())
//	orch := flowengine.New(client)
//
// # Response shapes
//
// The engine answers in two shapes and the client accepts both. Enveloped
// responses look like {"success": bool, "data": ..., "message": "..."}; bare
// responses carry the payload directly (a flow object, a list of flows).
// HTTP errors carry {"detail": ...}, where detail is either a string or a
// list of {"msg": ...} objects.
//
// # Error classes
//
//   - network errors, 429 and 5xx: transient, retried for idempotent reads
//   - 404 on flow endpoints: errors.ErrFlowNotFound
//   - 409: errors.ErrVersionConflict
//   - other 4xx: invalid, carrying the engine's detail text
//
// Execute distinguishes a refused flow from a failed run: an unsuccessful
// envelope with null data, or an HTTP 400/422, is returned as
// *flowengine.ValidationError; an unsuccessful envelope that carries data
// is a finished run with Success false.
package engineclient
