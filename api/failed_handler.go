package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gabteles/qu-mongoid/dlq"
	"github.com/gabteles/qu-mongoid/id"
)

func (a *API) listFailed(c *gin.Context) {
	resp := FailedResponse{Failed: []*dlq.Entry{}}
	for e, err := range a.eng.Failures(c.Request.Context()) {
		if err != nil {
			a.fail(c, err)
			return
		}
		resp.Failed = append(resp.Failed, e)
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) getFailed(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	e, err := a.eng.Failure(c.Request.Context(), jobID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (a *API) replayFailed(c *gin.Context) {
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}
	j, err := a.eng.Replay(c.Request.Context(), jobID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, JobResponse{Job: j})
}

func parseJobID(c *gin.Context) (id.JobID, bool) {
	jobID, err := id.ParseJobID(c.Param("id"))
	if err != nil {
		badRequest(c, fmt.Sprintf("invalid job ID: %v", err))
		return id.Nil, false
	}
	return jobID, true
}
