// Package queue tracks which queues exist and throttles reservations per
// queue.
//
// Queues are named collections of pending jobs. A queue comes into being on
// its first enqueue and disappears when it is cleared. [Registry] keeps the
// set of names in the "<ns>:queues" collection so that clearing "all queues"
// knows what to drop.
//
// # Throttling
//
// [Throttle] enforces optional per-queue limits inside one process. It uses
// a token-bucket rate limiter (golang.org/x/time/rate) and an active-count
// gate for concurrency limits:
//
//	th := queue.NewThrottle(
//	    queue.Limit{Name: "critical", MaxConcurrency: 20},
//	    queue.Limit{Name: "bulk", RateLimit: 5, RateBurst: 10},
//	)
//
// The worker pool passes the throttle to each reservation round. A queue
// whose Acquire fails is skipped for that round.
package queue
