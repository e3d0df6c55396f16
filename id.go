package qu

import "github.com/gabteles/qu-mongoid/id"

// JobID identifies a job for its whole lifetime, including time spent in the
// failed queue.
type JobID = id.JobID
