package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limit defines per-queue reservation limits for one process.
type Limit struct {
	// Name is the queue identifier.
	Name string

	// MaxConcurrency limits how many jobs from this queue the local worker
	// pool may hold at once. Zero means no limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained reservations per second from this
	// queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// queueState tracks runtime state for a single queue.
type queueState struct {
	limit   Limit
	limiter *rate.Limiter
	active  int
}

// Throttle gates reservations per queue. A reservation round skips a queue
// whose Acquire fails, so a throttled queue yields to the next one in the
// worker's list. It is safe for concurrent use.
type Throttle struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewThrottle creates a Throttle. Queues not listed have no limits.
func NewThrottle(limits ...Limit) *Throttle {
	t := &Throttle{queues: make(map[string]*queueState, len(limits))}
	for _, l := range limits {
		t.queues[l.Name] = newQueueState(l)
	}
	return t
}

func newQueueState(l Limit) *queueState {
	qs := &queueState{limit: l}
	if l.RateLimit > 0 {
		burst := l.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(l.RateLimit), burst)
	}
	return qs
}

// Acquire reports whether a job may be reserved from queue now. On success
// the active count is incremented and the caller must call Release once the
// job is done or the pop came back empty.
//
// Acquire only checks that a rate token is available; Commit spends it once
// a job was actually popped, so polling an empty queue costs nothing.
func (t *Throttle) Acquire(queue string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	qs := t.queues[queue]
	if qs == nil {
		return true
	}
	if qs.limit.MaxConcurrency > 0 && qs.active >= qs.limit.MaxConcurrency {
		return false
	}
	if qs.limiter != nil && qs.limiter.Tokens() < 1 {
		return false
	}
	qs.active++
	return true
}

// Commit charges one rate token to queue for a job that was popped after a
// successful Acquire. Concurrent reservers that raced past Acquire put the
// limiter into debt, which later Acquires pay back.
func (t *Throttle) Commit(queue string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if qs := t.queues[queue]; qs != nil && qs.limiter != nil {
		qs.limiter.Reserve()
	}
}

// Release decrements the active count for queue.
func (t *Throttle) Release(queue string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if qs := t.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetLimit replaces (or creates) the limit for a queue at runtime. Jobs
// already held keep counting against the new limit.
func (t *Throttle) SetLimit(l Limit) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing := t.queues[l.Name]
	qs := newQueueState(l)
	if existing != nil {
		qs.active = existing.active
	}
	t.queues[l.Name] = qs
}

// ActiveCount returns the current number of held jobs for a queue.
func (t *Throttle) ActiveCount(queue string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if qs := t.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}

// Limit returns the configured limit for queue.
func (t *Throttle) Limit(queue string) (Limit, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if qs := t.queues[queue]; qs != nil {
		return qs.limit, true
	}
	return Limit{}, false
}
