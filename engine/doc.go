// Package engine wires the job store, queue registry, worker registry and
// failed-job sink over one document store, and is the application-level
// API for producing and consuming jobs.
//
// # Building an Engine
//
//	st, err := mongo.Connect(ctx, qu.DefaultConfig())
//	eng, err := engine.Build(st,
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	    engine.WithThrottle(queue.NewThrottle(queue.Limit{
//	        Name:           "mail",
//	        MaxConcurrency: 4,
//	    })),
//	)
//
// # Producing
//
//	eng.Enqueue(ctx, "mail", "SendEmail", "a@b.c", "hi")
//
// # Reserving by hand
//
// Reserve walks the worker's queues in order each round. Blocking waits
// the configured poll interval between empty rounds until ctx ends;
// NonBlocking returns (nil, nil) after one empty round.
//
//	w := cluster.NewWorker("critical", "mail")
//	j, err := eng.Reserve(ctx, w, engine.Blocking)
//	...
//	eng.Completed(ctx, j)     // or eng.Failed(ctx, j, err) / eng.Release(ctx, j)
//
// # Worker pools
//
//	reg := job.NewRegistry()
//	reg.Register("SendEmail", sendEmail)
//
//	pool := eng.NewPool(reg,
//	    worker.WithPoolQueues("critical", "mail"),
//	    worker.WithPoolConcurrency(8),
//	)
//	pool.Start(ctx)
//	defer pool.Stop(ctx)
//
// Pools run handlers through recover, tracing, metrics, logging and timeout
// middleware before any added with WithMiddleware.
package engine
