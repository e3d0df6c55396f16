package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/gabteles/qu-mongoid/cluster"
	"github.com/gabteles/qu-mongoid/queue"
)

func (a *API) listQueues(c *gin.Context) {
	ctx := c.Request.Context()
	names, err := a.eng.Queues(ctx)
	if err != nil {
		a.fail(c, err)
		return
	}

	resp := QueuesResponse{Queues: make([]QueueInfo, 0, len(names))}
	for _, name := range names {
		n, err := a.eng.Length(ctx, name)
		if err != nil {
			a.fail(c, err)
			return
		}
		resp.Queues = append(resp.Queues, QueueInfo{Name: name, Length: n})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) queueLength(c *gin.Context) {
	name := c.Param("name")
	n, err := a.eng.Length(c.Request.Context(), name)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, QueueInfo{Name: name, Length: n})
}

// clearQueues empties the queues named by repeated ?name= parameters, or
// every queue and the failed queue when none is given.
func (a *API) clearQueues(c *gin.Context) {
	if err := a.eng.Clear(c.Request.Context(), c.QueryArray("name")...); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	j, err := a.eng.Enqueue(c.Request.Context(), c.Param("name"), req.Tag, req.Args...)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, JobResponse{Job: j})
}

// reserve pops one job from the queue without blocking. The caller takes
// ownership of the job; it is not tracked further and holds no throttle
// slot. An empty queue answers 204.
func (a *API) reserve(c *gin.Context) {
	name := c.Param("name")
	host, _ := os.Hostname()
	w := &cluster.Worker{
		ID:     fmt.Sprintf("http:%s:%s", host, c.ClientIP()),
		Queues: []string{name},
	}

	j, err := a.eng.Handoff(c.Request.Context(), w)
	if err != nil {
		a.fail(c, err)
		return
	}
	if j == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, JobResponse{Job: j})
}

func (a *API) getLimit(c *gin.Context) {
	name := c.Param("name")
	l, active, _ := a.eng.Limit(name)
	c.JSON(http.StatusOK, LimitResponse{
		Queue:          name,
		MaxConcurrency: l.MaxConcurrency,
		RateLimit:      l.RateLimit,
		RateBurst:      l.RateBurst,
		Active:         active,
	})
}

// setLimit replaces the queue's reservation limit for the worker pool in
// this process until restart.
func (a *API) setLimit(c *gin.Context) {
	var req LimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	a.eng.SetLimit(queue.Limit{
		Name:           c.Param("name"),
		MaxConcurrency: req.MaxConcurrency,
		RateLimit:      req.RateLimit,
		RateBurst:      req.RateBurst,
	})
	a.getLimit(c)
}
