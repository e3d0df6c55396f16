// Package mongo implements store.Store on MongoDB with the official v2
// driver. Each collection key ("qu:queue:default", "qu:workers", ...) is a
// MongoDB collection of the same name, and pops use findAndModify so
// concurrent workers never receive the same job.
//
// Connect builds and owns its client, pinging with retries first:
//
//	cfg := qu.DefaultConfig()
//	cfg.ApplyEnv() // MONGOHQ_URL / MONGOLAB_URI
//	st, err := mongo.Connect(ctx, cfg)
//	defer st.Close()
//
// New wraps a client the caller already manages:
//
//	st := mongo.New(client, "qu")
//
// Old servers report an unmatched findAndModify as an error; those map to
// qu.ErrUnsupported, which the job store treats as an empty queue.
package mongo
