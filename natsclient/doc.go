// Package natsclient wraps a NATS connection and its JetStream Key-Value
// buckets.
//
// The client tracks connection status, reports it to the core
// "flowcanvas_nats_connected" gauge when metrics are enabled, and exposes the
// two things the rest of flowcanvas needs: Publish for run status events and
// KV buckets for flow persistence.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("flowcanvas"),
//	    natsclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "flowcanvas_flows"})
//	kv := client.NewKVStore(bucket)
//
// KVStore adds revision-aware Create and Update on top of the raw bucket and
// maps NATS errors onto ErrKVKeyNotFound, ErrKVKeyExists and
// ErrKVRevisionMismatch.
//
// TestClient starts a NATS server in a container via testcontainers-go for
// integration tests.
package natsclient
