package api

import (
	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/dlq"
	"github.com/gabteles/qu-mongoid/job"
)

// EnqueueRequest is the body of POST /queues/:name/jobs.
type EnqueueRequest struct {
	Tag  string `json:"tag" binding:"required"`
	Args []any  `json:"args"`
}

// QueueInfo describes one queue.
type QueueInfo struct {
	Name   string `json:"name"`
	Length int64  `json:"length"`
}

// QueuesResponse lists the registered queues.
type QueuesResponse struct {
	Queues []QueueInfo `json:"queues"`
}

// LimitRequest is the body of PUT /queues/:name/limit. Zero values remove
// the corresponding limit.
type LimitRequest struct {
	MaxConcurrency int     `json:"max_concurrency" binding:"min=0"`
	RateLimit      float64 `json:"rate_limit" binding:"min=0"`
	RateBurst      int     `json:"rate_burst" binding:"min=0"`
}

// LimitResponse reports one queue's reservation limit in this process.
type LimitResponse struct {
	Queue          string  `json:"queue"`
	MaxConcurrency int     `json:"max_concurrency"`
	RateLimit      float64 `json:"rate_limit"`
	RateBurst      int     `json:"rate_burst"`
	Active         int     `json:"active"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job *job.Job `json:"job"`
}

// WorkersResponse lists registered workers.
type WorkersResponse struct {
	Workers []*cluster.Worker `json:"workers"`
}

// FailedResponse lists failed job records.
type FailedResponse struct {
	Failed []*dlq.Entry `json:"failed"`
}

// HealthResponse reports storage reachability.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries an error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
