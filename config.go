package qu

import (
	"os"
	"time"
)

// FailedQueue is the pseudo-queue holding records of jobs that failed.
const FailedQueue = "failed"

// DefaultQueue is used when a job is enqueued without a queue name.
const DefaultQueue = "default"

// Config holds the backend settings shared by every store and the engine.
type Config struct {
	// MaxRetries is how many times establishing a storage connection is
	// retried before giving up.
	MaxRetries int

	// RetryDelay is the pause between connection attempts.
	RetryDelay time.Duration

	// PollInterval is how long a blocking reservation sleeps after a round
	// over all of a worker's queues came back empty.
	PollInterval time.Duration

	// Session names the connection target used when none is given.
	Session string

	// Database is the logical database name.
	Database string

	// Namespace prefixes every collection key.
	Namespace string

	// URI is the connection string. Empty means the backend default.
	URI string
}

// DefaultConfig returns a Config with the historical defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   5,
		RetryDelay:   1 * time.Second,
		PollInterval: 5 * time.Second,
		Session:      "default",
		Database:     "qu",
		Namespace:    "qu",
	}
}

// ApplyEnv fills URI from the hosted-Mongo environment variables when it is
// not already set. MONGOHQ_URL wins over MONGOLAB_URI.
func (c *Config) ApplyEnv() {
	if c.URI != "" {
		return
	}
	for _, key := range []string{"MONGOHQ_URL", "MONGOLAB_URI"} {
		if v := os.Getenv(key); v != "" {
			c.URI = v
			return
		}
	}
}
