// Package flowstore converts graphs to and from the canonical Flow document
// and persists documents.
//
// # Overview
//
// A FlowDocument is the wire format shared by every store and by the remote
// engine. ToDocument snapshots a flowgraph.Graph with deep-copied params, so
// later edits never reach an already-serialized document. FromDocument
// rebuilds a graph tolerantly: nodes first, then edges; edges with a missing
// endpoint or a self-loop are dropped and reported, and nodes whose
// instruction is unknown are kept with an unresolved marker.
//
// # Schema versions
//
// The canonical schema is version 1. Decode validates raw bytes against the
// embedded JSON Schema and upgrades version 0 documents through Migrate,
// which rewrites legacy array-shaped file lists into the object shape
// {"files": [...]}. Migrating a version 1 document is a no-op.
//
// # Storage
//
// Store is the save/load contract:
//
//	Save(ctx, doc)   assigns an id when doc.ID is empty, updates otherwise
//	Load(ctx, id)
//	List(ctx)
//	Delete(ctx, id)
//
// KVStore keeps documents in the NATS KV bucket "flowcanvas_flows" with
// optimistic concurrency on the document version. SQLiteStore keeps them in
// a single table as ArchiveCodec blobs (msgpack + zstd).
//
// All validation errors use errors.WrapInvalid; storage failures use
// errors.WrapTransient.
package flowstore
